package entities

import "time"

// User is a local identity. Users are created on sign-up with a federated
// credential and own the access and refresh tokens issued to them.
type User struct {
	ID            string    `json:"id" db:"id"`
	Email         *string   `json:"email,omitempty" db:"email"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	AvatarURL     *string   `json:"avatar_url,omitempty" db:"avatar_url"` // picture claim at sign-up
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// HasVerifiedEmail returns true if the user has an email address that the
// identity provider has verified
func (u *User) HasVerifiedEmail() bool {
	return u.Email != nil && u.EmailVerified
}
