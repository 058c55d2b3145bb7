package oidc

import "errors"

// Failure kinds returned by token validation. Every error returned from this
// package wraps exactly one of these so callers can map it with errors.Is.
var (
	// ErrInvalidToken is returned when a token is malformed, its payload is not
	// a JSON object, its signature does not verify or a time-bound claim fails.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidIssuer is returned when an issuer is not a well-formed https URL
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidJWKSURL is returned when a discovery document's jwks_uri is not a well-formed https URL
	ErrInvalidJWKSURL = errors.New("invalid JWKS URL")

	// ErrInvalidDiscoveryDocument is returned when a discovery document is not
	// JSON, lacks a required field or was served for a different issuer
	ErrInvalidDiscoveryDocument = errors.New("invalid OIDC discovery document")

	// ErrFetch is returned for every transport failure: connection errors,
	// timeouts and non-2xx responses
	ErrFetch = errors.New("fetch failed")

	// ErrInvalidClaims is returned when a pre- or post-validation policy rejects the claims
	ErrInvalidClaims = errors.New("invalid claims")
)
