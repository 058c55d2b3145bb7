package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rjw57/componentsdb/internal/domain/entities"
	"github.com/rjw57/componentsdb/internal/domain/repositories"
	"github.com/rjw57/componentsdb/internal/pkg/idgen"
	"github.com/rjw57/componentsdb/internal/pkg/metrics"
)

// AuditRepository implements repositories.AuditRepository
type AuditRepository struct {
	db sqlx.ExtContext
}

// NewAuditRepository creates an audit log repository
func NewAuditRepository(db sqlx.ExtContext) repositories.AuditRepository {
	return &AuditRepository{db: db}
}

// auditLogRow represents an audit log entry as stored in the database
type auditLogRow struct {
	ID         string         `db:"id"`
	UserID     sql.NullString `db:"user_id"`
	Action     string         `db:"action"`
	Resource   string         `db:"resource"`
	ResourceID sql.NullString `db:"resource_id"`
	Metadata   string         `db:"metadata"` // JSON
	Success    bool           `db:"success"`
	ErrorMsg   sql.NullString `db:"error_message"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r *auditLogRow) toEntity() (*entities.AuditLog, error) {
	log := &entities.AuditLog{
		ID:         r.ID,
		UserID:     stringPtr(r.UserID),
		Action:     entities.AuditAction(r.Action),
		Resource:   entities.AuditResource(r.Resource),
		ResourceID: stringPtr(r.ResourceID),
		Success:    r.Success,
		ErrorMsg:   stringPtr(r.ErrorMsg),
		CreatedAt:  r.CreatedAt,
	}
	if err := log.UnmarshalMetadataFromJSON(r.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse audit metadata: %w", err)
	}
	return log, nil
}

// Create inserts an audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *entities.AuditLog) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("audit_log", "create", time.Since(start), 1, err)
	}()

	if log.ID == "" {
		log.ID = idgen.GenerateID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	metadata, err := log.MarshalMetadataToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO audit_logs (id, user_id, action, resource, resource_id, metadata, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		log.ID, nullString(log.UserID), string(log.Action), string(log.Resource),
		nullString(log.ResourceID), metadata, log.Success, nullString(log.ErrorMsg), log.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first, optionally for one user
func (r *AuditRepository) ListRecent(ctx context.Context, userID string, limit int) (_ []*entities.AuditLog, err error) {
	start := time.Now()
	var rows []auditLogRow
	defer func() {
		metrics.RecordDBOperation("audit_log", "list_recent", time.Since(start), int64(len(rows)), err)
	}()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, user_id, action, resource, resource_id, metadata, success, error_message, created_at
		FROM audit_logs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	if err = sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	logs := make([]*entities.AuditLog, 0, len(rows))
	for i := range rows {
		log, convErr := rows[i].toEntity()
		if convErr != nil {
			err = convErr
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, nil
}
