package repositories

import (
	"context"
	"time"

	"github.com/rjw57/componentsdb/internal/domain/entities"
)

// TokenRepository defines the interface for first-party access and refresh
// token data access. Tokens are addressed by the hash of their value.
type TokenRepository interface {
	// CreateAccessToken stores a new access token
	CreateAccessToken(ctx context.Context, token *entities.AccessToken) error

	// CreateRefreshToken stores a new refresh token
	CreateRefreshToken(ctx context.Context, token *entities.RefreshToken) error

	// GetUserByAccessToken returns the owner of an access token that has not
	// expired at now. Returns ErrTokenNotFound otherwise.
	GetUserByAccessToken(ctx context.Context, tokenHash string, now time.Time) (*entities.User, error)

	// RedeemRefreshToken marks an unused, unexpired refresh token as used at
	// now and returns its owner's ID, in a single conditional update. Returns
	// ErrTokenNotFound if no token could be redeemed.
	RedeemRefreshToken(ctx context.Context, tokenHash string, now time.Time) (string, error)

	// DeleteExpired deletes access and refresh tokens that expired before the
	// given time (cleanup job)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
