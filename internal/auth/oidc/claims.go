package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claims carried by a federated identity token. Claims
// returned by ParseUnverifiedClaims have not been checked against any key and
// must not be trusted; claims returned by Validator.Validate have.
type Claims struct {
	// Registered claims: iss, sub, aud, exp, nbf, iat and jti
	jwt.RegisteredClaims

	// Email address of the user
	Email *string `json:"email,omitempty"`

	// EmailVerified indicates if the provider has verified the email address.
	// Both JSON booleans and the strings "true"/"false" are accepted.
	EmailVerified bool `json:"-"`

	// Name is the user's full display name
	Name *string `json:"name,omitempty"`

	// Picture is the URL to the user's profile picture
	Picture *string `json:"picture,omitempty"`

	// Extra holds every claim not mapped to a field above
	Extra map[string]any `json:"-"`

	raw map[string]any
}

// claimsFields has the field layout of Claims without its JSON methods
type claimsFields Claims

var knownClaims = []string{
	"iss", "sub", "aud", "exp", "nbf", "iat", "jti",
	"email", "email_verified", "name", "picture",
}

// UnmarshalJSON decodes a JSON object into c. Anything other than an object
// is rejected.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("claims are not a JSON object: %w", err)
	}
	if raw == nil {
		return errors.New("claims are not a JSON object")
	}

	var fields claimsFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = Claims(fields)

	switch v := raw["email_verified"].(type) {
	case bool:
		c.EmailVerified = v
	case string:
		c.EmailVerified = strings.EqualFold(v, "true")
	}

	c.Extra = make(map[string]any)
	for k, v := range raw {
		if !slices.Contains(knownClaims, k) {
			c.Extra[k] = v
		}
	}
	c.raw = raw
	return nil
}

// MarshalJSON encodes the full claim set, including unrecognised claims
func (c *Claims) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// Map returns a copy of the full claim set as decoded JSON values
func (c *Claims) Map() map[string]any {
	if c.raw != nil {
		return maps.Clone(c.raw)
	}

	out := make(map[string]any)
	data, err := json.Marshal((*claimsFields)(c))
	if err == nil {
		_ = json.Unmarshal(data, &out)
	}
	if c.EmailVerified {
		out["email_verified"] = true
	}
	for k, v := range c.Extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Get returns the decoded value of a single claim
func (c *Claims) Get(name string) (any, bool) {
	if c.raw != nil {
		v, ok := c.raw[name]
		return v, ok
	}
	v, ok := c.Map()[name]
	return v, ok
}

// HasAudience reports whether aud is the token's audience or one of them
func (c *Claims) HasAudience(aud string) bool {
	return slices.Contains(c.Audience, aud)
}

// ParseUnverifiedClaims decodes the claims of token without verifying its
// signature. It fails with ErrInvalidToken if the token is not structurally a
// JWT or its payload is not a JSON object.
func ParseUnverifiedClaims(token string) (*Claims, error) {
	_, claims, err := parseUnverified(token)
	return claims, err
}

// parseUnverified additionally returns the key ID from the token header, if any
func parseUnverified(token string) (string, *Claims, error) {
	claims := &Claims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	kid, _ := parsed.Header["kid"].(string)
	return kid, claims, nil
}
