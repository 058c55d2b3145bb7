package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rjw57/componentsdb/internal/domain/repositories"
)

// UnitOfWork implements repositories.UnitOfWork over a connection pool
type UnitOfWork struct {
	conn *Connection
}

// NewUnitOfWork creates a unit of work over conn
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin starts a transaction
func (u *UnitOfWork) Begin(ctx context.Context) (repositories.Transaction, error) {
	tx, err := u.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &transaction{tx: tx, repos: newRepositories(tx)}, nil
}

// Repositories returns repositories whose operations commit individually
func (u *UnitOfWork) Repositories() *repositories.Repositories {
	return newRepositories(u.conn.DB)
}

// HealthCheck pings the database
func (u *UnitOfWork) HealthCheck(ctx context.Context) error {
	return u.conn.HealthCheck(ctx)
}

func newRepositories(db sqlx.ExtContext) *repositories.Repositories {
	return &repositories.Repositories{
		Users:          NewUserRepository(db),
		Credentials:    NewFederatedCredentialRepository(db),
		CredentialUses: NewCredentialUseRepository(db),
		Tokens:         NewTokenRepository(db),
		Audit:          NewAuditRepository(db),
	}
}

type transaction struct {
	tx    *sqlx.Tx
	repos *repositories.Repositories
}

func (t *transaction) Commit() error {
	return t.tx.Commit()
}

func (t *transaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *transaction) GetRepositories() *repositories.Repositories {
	return t.repos
}
