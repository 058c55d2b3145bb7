// Package auth connects first-party access tokens to HTTP requests. The
// federated token verification lives in the oidc subpackage.
package auth

import (
	"context"
	"errors"

	"github.com/rjw57/componentsdb/internal/domain/entities"
)

var ErrUnauthorized = errors.New("unauthorized")

// UserContext contains authenticated user information
type UserContext struct {
	UserID        string
	DisplayName   string
	Email         string
	EmailVerified bool
	AvatarURL     string
}

// NewUserContext copies the request-relevant fields of user
func NewUserContext(user *entities.User) *UserContext {
	uc := &UserContext{
		UserID:        user.ID,
		DisplayName:   user.DisplayName,
		EmailVerified: user.EmailVerified,
	}
	if user.Email != nil {
		uc.Email = *user.Email
	}
	if user.AvatarURL != nil {
		uc.AvatarURL = *user.AvatarURL
	}
	return uc
}

// contextKey is the key for storing user info in context
type contextKey string

const userContextKey contextKey = "user"

// GetUserFromContext extracts the authenticated user from the context.
// Returns ErrUnauthorized for anonymous requests.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// SetUserInContext stores the authenticated user in the context
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
