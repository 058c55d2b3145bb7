package repositories

import (
	"context"

	"github.com/rjw57/componentsdb/internal/domain/entities"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create a new user. ID and timestamps are assigned when empty.
	Create(ctx context.Context, user *entities.User) error

	// GetByID retrieves a user by their ID
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// Count returns the number of users
	Count(ctx context.Context) (int64, error)
}
