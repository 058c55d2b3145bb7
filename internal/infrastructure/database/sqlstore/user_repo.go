package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rjw57/componentsdb/internal/domain/entities"
	"github.com/rjw57/componentsdb/internal/domain/repositories"
	"github.com/rjw57/componentsdb/internal/pkg/idgen"
	"github.com/rjw57/componentsdb/internal/pkg/metrics"
)

// UserRepository implements repositories.UserRepository
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a user repository over db, which may be a pool
// or a transaction
func NewUserRepository(db sqlx.ExtContext) repositories.UserRepository {
	return &UserRepository{db: db}
}

// userColumns is qualified so it can be used in joins
const userColumns = `users.id, users.email, users.email_verified, users.display_name,
	users.avatar_url, users.created_at, users.updated_at`

// userRow represents a user as stored in the database
type userRow struct {
	ID            string         `db:"id"`
	Email         sql.NullString `db:"email"`
	EmailVerified bool           `db:"email_verified"`
	DisplayName   string         `db:"display_name"`
	AvatarURL     sql.NullString `db:"avatar_url"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *userRow) toEntity() *entities.User {
	return &entities.User{
		ID:            r.ID,
		Email:         stringPtr(r.Email),
		EmailVerified: r.EmailVerified,
		DisplayName:   r.DisplayName,
		AvatarURL:     stringPtr(r.AvatarURL),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *entities.User) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("user", "create", time.Since(start), 1, err)
	}()

	if user.ID == "" {
		user.ID = idgen.GenerateID()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	query := r.db.Rebind(`
		INSERT INTO users (id, email, email_verified, display_name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		user.ID, nullString(user.Email), user.EmailVerified, user.DisplayName,
		nullString(user.AvatarURL), user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (_ *entities.User, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("user", "get_by_id", time.Since(start), -1, err)
	}()

	var row userRow
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE users.id = ?`)
	if err = sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toEntity(), nil
}

// Count returns the number of users
func (r *UserRepository) Count(ctx context.Context) (_ int64, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("user", "count", time.Since(start), -1, err)
	}()

	var count int64
	if err = sqlx.GetContext(ctx, r.db, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
