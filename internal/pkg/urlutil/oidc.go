package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrNotURL is returned when a string cannot be parsed as an absolute URL with a host
	ErrNotURL = errors.New("is not a valid URL")

	// ErrNotHTTPS is returned when a URL's scheme is not https
	ErrNotHTTPS = errors.New("does not have a https scheme")
)

// ParseHTTPS parses raw and requires it to be an absolute https URL with a host.
// The returned error is ErrNotURL or ErrNotHTTPS.
func ParseHTTPS(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) != raw || raw == "" {
		return nil, ErrNotURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Opaque != "" || u.Hostname() == "" {
		return nil, ErrNotURL
	}
	if u.Scheme != "https" {
		return nil, ErrNotHTTPS
	}
	return u, nil
}

// OIDCDiscoveryURL builds the OIDC discovery document URL for the given issuer.
// Returns a URL like: {issuer}/.well-known/openid-configuration
// Ensures no double slashes by trimming trailing slash from issuer.
func OIDCDiscoveryURL(issuer string) string {
	issuer = strings.TrimRight(issuer, "/")
	return fmt.Sprintf("%s/.well-known/openid-configuration", issuer)
}
