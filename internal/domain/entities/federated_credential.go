package entities

import (
	"encoding/json"
	"time"
)

// FederatedUserCredential links a user to an identity asserted by a federated
// identity provider. The (issuer, audience, subject) triple is unique.
type FederatedUserCredential struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Issuer    string    `json:"issuer" db:"issuer"`     // iss claim
	Audience  string    `json:"audience" db:"audience"` // aud claim matched at sign-up
	Subject   string    `json:"subject" db:"subject"`   // sub claim
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Key returns the identifying triple formatted for logging
func (c *FederatedUserCredential) Key() string {
	return c.Issuer + " " + c.Audience + " " + c.Subject
}

// FederatedUserCredentialUse records a federated token having been presented.
// Uses are append-only; a jti seen in an earlier use marks a replay.
type FederatedUserCredentialUse struct {
	ID        string         `json:"id" db:"id"`
	JTI       *string        `json:"jti,omitempty" db:"jti"`
	Claims    map[string]any `json:"claims" db:"claims"` // stored as JSON in DB
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// NewFederatedUserCredentialUse creates a use record for a verified claim set
func NewFederatedUserCredentialUse(claims map[string]any) *FederatedUserCredentialUse {
	use := &FederatedUserCredentialUse{
		Claims:    claims,
		CreatedAt: time.Now(),
	}
	if jti, ok := claims["jti"].(string); ok {
		use.JTI = &jti
	}
	return use
}

// MarshalClaimsToJSON converts the claims map to a JSON string for database storage
func (u *FederatedUserCredentialUse) MarshalClaimsToJSON() (string, error) {
	if u.Claims == nil {
		return "{}", nil
	}
	data, err := json.Marshal(u.Claims)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
