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
	"github.com/rjw57/componentsdb/internal/pkg/metrics"
)

// TokenRepository implements repositories.TokenRepository
type TokenRepository struct {
	db sqlx.ExtContext
}

// NewTokenRepository creates a token repository
func NewTokenRepository(db sqlx.ExtContext) repositories.TokenRepository {
	return &TokenRepository{db: db}
}

// CreateAccessToken stores a new access token
func (r *TokenRepository) CreateAccessToken(ctx context.Context, token *entities.AccessToken) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("access_token", "create", time.Since(start), 1, err)
	}()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO access_tokens (token_hash, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query, token.TokenHash, token.UserID, token.ExpiresAt.UTC(), token.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}
	return nil
}

// CreateRefreshToken stores a new refresh token
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token *entities.RefreshToken) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("refresh_token", "create", time.Since(start), 1, err)
	}()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at, used_at, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		token.TokenHash, token.UserID, token.ExpiresAt.UTC(), nullTime(token.UsedAt), token.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetUserByAccessToken returns the owner of an unexpired access token
func (r *TokenRepository) GetUserByAccessToken(ctx context.Context, tokenHash string, now time.Time) (_ *entities.User, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("access_token", "get_user", time.Since(start), -1, err)
	}()

	var row userRow
	query := r.db.Rebind(`
		SELECT ` + userColumns + `
		FROM users
		JOIN access_tokens AS t ON t.user_id = users.id
		WHERE t.token_hash = ? AND t.expires_at >= ?`)
	if err = sqlx.GetContext(ctx, r.db, &row, query, tokenHash, now.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get user by access token: %w", err)
	}
	return row.toEntity(), nil
}

// RedeemRefreshToken marks a refresh token used. The conditional update makes
// redemption single-use even under concurrent callers.
func (r *TokenRepository) RedeemRefreshToken(ctx context.Context, tokenHash string, now time.Time) (_ string, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("refresh_token", "redeem", time.Since(start), -1, err)
	}()

	var userID string
	query := r.db.Rebind(`
		UPDATE refresh_tokens
		SET used_at = ?
		WHERE token_hash = ? AND used_at IS NULL AND expires_at >= ?
		RETURNING user_id`)
	if err = sqlx.GetContext(ctx, r.db, &userID, query, now.UTC(), tokenHash, now.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repositories.ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to redeem refresh token: %w", err)
	}
	return userID, nil
}

// DeleteExpired deletes access and refresh tokens that expired before the
// given time and returns the number deleted
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (_ int64, err error) {
	start := time.Now()
	var total int64
	defer func() {
		metrics.RecordDBOperation("token", "delete_expired", time.Since(start), total, err)
	}()

	for _, table := range []string{"access_tokens", "refresh_tokens"} {
		query := r.db.Rebind(`DELETE FROM ` + table + ` WHERE expires_at < ?`)
		result, execErr := r.db.ExecContext(ctx, query, before.UTC())
		if execErr != nil {
			err = fmt.Errorf("failed to delete expired %s: %w", table, execErr)
			return total, err
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}
