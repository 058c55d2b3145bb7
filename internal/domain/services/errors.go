package services

import "errors"

// Authentication errors. Each is a distinct failure reason so callers can map
// it to a precise response; wrapped causes carry the detail.
var (
	// ErrInvalidProvider is returned when no federated identity provider has
	// the requested name
	ErrInvalidProvider = errors.New("no such federated identity provider")

	// ErrInvalidFederatedCredential is returned when a federated token fails
	// verification, lacks a required claim or has already been used
	ErrInvalidFederatedCredential = errors.New("the federated credential was invalid")

	// ErrUserAlreadySignedUp is returned on sign-up with an identity that is
	// already linked to a user
	ErrUserAlreadySignedUp = errors.New("user already signed up")

	// ErrNoSuchUser is returned on sign-in with an identity that is not linked
	// to any user
	ErrNoSuchUser = errors.New("no user matches the federated credential")

	// ErrInvalidAccessToken is returned when an access token is unknown or expired
	ErrInvalidAccessToken = errors.New("the access token could not be verified")

	// ErrInvalidRefreshToken is returned when a refresh token is unknown,
	// expired or already used. The cases are deliberately not distinguished.
	ErrInvalidRefreshToken = errors.New("the refresh token could not be verified")
)

// authErrorKinds maps sentinel errors to metric status labels
var authErrorKinds = map[error]string{
	ErrInvalidProvider:            "invalid_provider",
	ErrInvalidFederatedCredential: "invalid_federated_credential",
	ErrUserAlreadySignedUp:        "user_already_signed_up",
	ErrNoSuchUser:                 "no_such_user",
	ErrInvalidAccessToken:         "invalid_access_token",
	ErrInvalidRefreshToken:        "invalid_refresh_token",
}

// IsAuthError reports whether err is one of the authentication errors above,
// as opposed to an internal failure such as a database error
func IsAuthError(err error) bool {
	for target := range authErrorKinds {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
