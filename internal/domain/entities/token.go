package entities

import "time"

// AccessToken is a short-lived opaque bearer token. Only a hash of the token
// value is stored.
type AccessToken struct {
	TokenHash string    `json:"-" db:"token_hash"` // never serialize to JSON
	UserID    string    `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RefreshToken is a long-lived opaque token that may be redeemed once for a
// new access and refresh token pair
type RefreshToken struct {
	TokenHash string     `json:"-" db:"token_hash"` // never serialize to JSON
	UserID    string     `json:"user_id" db:"user_id"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
