package repositories

import (
	"context"

	"github.com/rjw57/componentsdb/internal/domain/entities"
)

// FederatedCredentialRepository defines the interface for federated user
// credential data access
type FederatedCredentialRepository interface {
	// Create links a federated identity to a user. Returns ErrCredentialExists
	// if the (issuer, audience, subject) triple is already linked.
	Create(ctx context.Context, credential *entities.FederatedUserCredential) error

	// GetUserByCredential returns the user linked to the triple, or nil if none is
	GetUserByCredential(ctx context.Context, issuer, audience, subject string) (*entities.User, error)

	// ListByUser returns the credentials linked to a user
	ListByUser(ctx context.Context, userID string) ([]*entities.FederatedUserCredential, error)
}

// CredentialUseRepository defines the interface for the federated token
// replay log
type CredentialUseRepository interface {
	// Create appends a use record
	Create(ctx context.Context, use *entities.FederatedUserCredentialUse) error

	// CountOtherUses counts use records with the given jti, excluding the
	// record with ID excludeID
	CountOtherUses(ctx context.Context, jti, excludeID string) (int64, error)
}
