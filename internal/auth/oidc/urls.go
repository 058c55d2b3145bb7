package oidc

import (
	"fmt"

	"github.com/rjw57/componentsdb/internal/pkg/urlutil"
)

// ValidateIssuer checks that issuer is a well-formed https URL. It must be
// called before an unverified iss claim is used to build a fetch target.
func ValidateIssuer(issuer string) error {
	if _, err := urlutil.ParseHTTPS(issuer); err != nil {
		return fmt.Errorf("%w: issuer %w", ErrInvalidIssuer, err)
	}
	return nil
}

// ValidateJWKSURL checks that a jwks_uri taken from a discovery document is a
// well-formed https URL.
func ValidateJWKSURL(jwksURL string) error {
	if _, err := urlutil.ParseHTTPS(jwksURL); err != nil {
		return fmt.Errorf("%w: JWKS URL %w", ErrInvalidJWKSURL, err)
	}
	return nil
}

// DiscoveryURL returns the discovery document URL for a validated issuer
func DiscoveryURL(issuer string) string {
	return urlutil.OIDCDiscoveryURL(issuer)
}
