package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// OpaqueTokenBytes is the number of random bytes in an opaque token
const OpaqueTokenBytes = 64

// NewOpaqueToken returns a random URL-safe token string
func NewOpaqueToken() (string, error) {
	b := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the storage key for a token value. Token values are never
// persisted, only their hashes.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
