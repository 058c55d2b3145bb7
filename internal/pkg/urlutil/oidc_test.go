package urlutil

import (
	"errors"
	"testing"
)

func TestParseHTTPS(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "https issuer", raw: "https://issuer.example", wantErr: nil},
		{name: "https with path", raw: "https://accounts.example.com/tenant/v2.0", wantErr: nil},
		{name: "https with port", raw: "https://localhost:8443", wantErr: nil},
		{name: "http scheme", raw: "http://issuer.example", wantErr: ErrNotHTTPS},
		{name: "ftp scheme", raw: "ftp://issuer.example", wantErr: ErrNotHTTPS},
		{name: "empty", raw: "", wantErr: ErrNotURL},
		{name: "no scheme", raw: "issuer.example", wantErr: ErrNotURL},
		{name: "no host", raw: "https://", wantErr: ErrNotURL},
		{name: "opaque", raw: "https:issuer.example", wantErr: ErrNotURL},
		{name: "space in host", raw: "https://issuer example", wantErr: ErrNotURL},
		{name: "leading whitespace", raw: " https://issuer.example", wantErr: ErrNotURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHTTPS(tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseHTTPS(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestOIDCDiscoveryURL(t *testing.T) {
	tests := []struct {
		name     string
		issuer   string
		expected string
	}{
		{
			name:     "issuer without trailing slash",
			issuer:   "https://issuer.example",
			expected: "https://issuer.example/.well-known/openid-configuration",
		},
		{
			name:     "issuer with trailing slash",
			issuer:   "https://issuer.example/",
			expected: "https://issuer.example/.well-known/openid-configuration",
		},
		{
			name:     "issuer with path",
			issuer:   "https://login.example.com/tenant/v2.0/",
			expected: "https://login.example.com/tenant/v2.0/.well-known/openid-configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OIDCDiscoveryURL(tt.issuer); got != tt.expected {
				t.Errorf("OIDCDiscoveryURL(%q) = %q, want %q", tt.issuer, got, tt.expected)
			}
		})
	}
}
