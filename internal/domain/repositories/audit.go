package repositories

import (
	"context"

	"github.com/rjw57/componentsdb/internal/domain/entities"
)

// AuditRepository defines the interface for audit log data access
type AuditRepository interface {
	// Create a new audit log entry
	Create(ctx context.Context, log *entities.AuditLog) error

	// ListRecent returns the most recent entries, newest first. An empty
	// userID lists entries for all users.
	ListRecent(ctx context.Context, userID string, limit int) ([]*entities.AuditLog, error)
}
