package idgen

import (
	"encoding/base64"
	"testing"
)

func TestGenerateIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := GenerateID()
		if seen[id] {
			t.Fatalf("GenerateID() returned duplicate %s", id)
		}
		seen[id] = true
	}
}

func TestNewOpaqueToken(t *testing.T) {
	a, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken() error = %v", err)
	}
	b, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken() error = %v", err)
	}
	if a == b {
		t.Error("NewOpaqueToken() returned the same value twice")
	}

	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}
	if len(raw)*8 < 256 {
		t.Errorf("token has %d bits of entropy, want at least 256", len(raw)*8)
	}
}

func TestHashToken(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"same input", "token", "token", true},
		{"different input", "token", "token2", false},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashToken(tt.a) == HashToken(tt.b); got != tt.equal {
				t.Errorf("HashToken(%q) == HashToken(%q) is %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}

	if HashToken("token") == "token" {
		t.Error("HashToken() returned its input")
	}
}
