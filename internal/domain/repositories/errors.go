package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenNotFound is returned when no usable token matches. Unknown,
	// expired and already redeemed tokens are not distinguished.
	ErrTokenNotFound = errors.New("token not found")

	// ErrCredentialExists is returned when a federated credential for the same
	// issuer, audience and subject already exists
	ErrCredentialExists = errors.New("federated credential already exists")
)
