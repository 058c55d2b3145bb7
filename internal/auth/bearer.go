package auth

import (
	"errors"
	"strings"
)

// ErrNotBearer is returned for an Authorization header with a scheme other
// than Bearer, or with no token
var ErrNotBearer = errors.New("bearer token required")

// BearerToken extracts the token from an Authorization header value. An empty
// header yields an empty token and no error. The scheme is case-insensitive.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNotBearer
	}
	return token, nil
}
