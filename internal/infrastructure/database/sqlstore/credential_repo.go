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

// FederatedCredentialRepository implements repositories.FederatedCredentialRepository
type FederatedCredentialRepository struct {
	db sqlx.ExtContext
}

// NewFederatedCredentialRepository creates a federated credential repository
func NewFederatedCredentialRepository(db sqlx.ExtContext) repositories.FederatedCredentialRepository {
	return &FederatedCredentialRepository{db: db}
}

type credentialRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Issuer    string    `db:"issuer"`
	Audience  string    `db:"audience"`
	Subject   string    `db:"subject"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *credentialRow) toEntity() *entities.FederatedUserCredential {
	return &entities.FederatedUserCredential{
		ID:        r.ID,
		UserID:    r.UserID,
		Issuer:    r.Issuer,
		Audience:  r.Audience,
		Subject:   r.Subject,
		CreatedAt: r.CreatedAt,
	}
}

// Create links a federated identity to a user
func (r *FederatedCredentialRepository) Create(ctx context.Context, credential *entities.FederatedUserCredential) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("federated_credential", "create", time.Since(start), 1, err)
	}()

	if credential.ID == "" {
		credential.ID = idgen.GenerateID()
	}
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO federated_user_credentials (id, user_id, issuer, audience, subject, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		credential.ID, credential.UserID, credential.Issuer, credential.Audience,
		credential.Subject, credential.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", repositories.ErrCredentialExists, credential.Key())
		}
		return fmt.Errorf("failed to create federated credential: %w", err)
	}
	return nil
}

// GetUserByCredential returns the user linked to (issuer, audience, subject)
func (r *FederatedCredentialRepository) GetUserByCredential(ctx context.Context, issuer, audience, subject string) (_ *entities.User, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("federated_credential", "get_user", time.Since(start), -1, err)
	}()

	var row userRow
	query := r.db.Rebind(`
		SELECT ` + userColumns + `
		FROM users
		JOIN federated_user_credentials AS c ON c.user_id = users.id
		WHERE c.issuer = ? AND c.audience = ? AND c.subject = ?`)
	if err = sqlx.GetContext(ctx, r.db, &row, query, issuer, audience, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by federated credential: %w", err)
	}
	return row.toEntity(), nil
}

// ListByUser returns the credentials linked to a user, oldest first
func (r *FederatedCredentialRepository) ListByUser(ctx context.Context, userID string) (_ []*entities.FederatedUserCredential, err error) {
	start := time.Now()
	var rows []credentialRow
	defer func() {
		metrics.RecordDBOperation("federated_credential", "list_by_user", time.Since(start), int64(len(rows)), err)
	}()

	query := r.db.Rebind(`
		SELECT id, user_id, issuer, audience, subject, created_at
		FROM federated_user_credentials
		WHERE user_id = ?
		ORDER BY created_at, id`)
	if err = sqlx.SelectContext(ctx, r.db, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list federated credentials: %w", err)
	}

	credentials := make([]*entities.FederatedUserCredential, len(rows))
	for i := range rows {
		credentials[i] = rows[i].toEntity()
	}
	return credentials, nil
}

// CredentialUseRepository implements repositories.CredentialUseRepository
type CredentialUseRepository struct {
	db sqlx.ExtContext
}

// NewCredentialUseRepository creates a credential use repository
func NewCredentialUseRepository(db sqlx.ExtContext) repositories.CredentialUseRepository {
	return &CredentialUseRepository{db: db}
}

// Create appends a use record
func (r *CredentialUseRepository) Create(ctx context.Context, use *entities.FederatedUserCredentialUse) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("federated_credential_use", "create", time.Since(start), 1, err)
	}()

	if use.ID == "" {
		use.ID = idgen.GenerateID()
	}
	if use.CreatedAt.IsZero() {
		use.CreatedAt = time.Now().UTC()
	}

	claimsJSON, err := use.MarshalClaimsToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO federated_user_credential_uses (id, jti, claims, created_at)
		VALUES (?, ?, ?, ?)`)
	if _, err = r.db.ExecContext(ctx, query, use.ID, nullString(use.JTI), claimsJSON, use.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to create federated credential use: %w", err)
	}
	return nil
}

// CountOtherUses counts use records with jti other than excludeID
func (r *CredentialUseRepository) CountOtherUses(ctx context.Context, jti, excludeID string) (_ int64, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBOperation("federated_credential_use", "count_other_uses", time.Since(start), -1, err)
	}()

	var count int64
	query := r.db.Rebind(`SELECT COUNT(*) FROM federated_user_credential_uses WHERE jti = ? AND id <> ?`)
	if err = sqlx.GetContext(ctx, r.db, &count, query, jti, excludeID); err != nil {
		return 0, fmt.Errorf("failed to count federated credential uses: %w", err)
	}
	return count, nil
}
