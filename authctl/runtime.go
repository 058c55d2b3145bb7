package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rjw57/componentsdb/internal/auth/oidc"
	"github.com/rjw57/componentsdb/internal/config"
	"github.com/rjw57/componentsdb/internal/domain/services"
	"github.com/rjw57/componentsdb/internal/infrastructure/database/sqlstore"
	"github.com/rjw57/componentsdb/internal/pkg/idgen"
	"github.com/rjw57/componentsdb/migrations"
)

// runtime holds the components a command needs. Call close when done.
type runtime struct {
	cfg      *config.Config
	conn     *sqlstore.Connection
	uow      *sqlstore.UnitOfWork
	cache    *oidc.ResponseCache
	resolver *oidc.Resolver
	registry *oidc.Registry
	auth     *services.AuthenticationProvider
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := idgen.Initialize(cfg.NodeID); err != nil {
		return nil, fmt.Errorf("failed to initialize ID generator: %w", err)
	}
	return cfg, nil
}

// newResolver builds a resolver using the configured fetch timeout and cache
func newResolver(cfg *config.Config) (*oidc.Resolver, *oidc.ResponseCache) {
	cache := oidc.NewResponseCache(cfg.OIDC.CacheTTL, cfg.OIDC.CacheCapacity)
	fetcher := oidc.NewAsyncFetcher(oidc.NewHTTPFetcher(nil, cfg.OIDC.FetchTimeout))
	return oidc.NewResolver(fetcher, cache, oidc.WithMinRefreshInterval(cfg.OIDC.MinRefreshInterval)), cache
}

// newRuntime connects to the database, applies pending migrations and builds
// the authentication provider
func newRuntime(opts *globalOptions) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := conn.RunMigrations(migrations.FS); err != nil {
		conn.Close()
		return nil, err
	}

	providers, err := cfg.Auth.Providers()
	if err != nil {
		conn.Close()
		return nil, err
	}
	resolver, cache := newResolver(cfg)
	registry, err := oidc.NewRegistry(resolver, providers)
	if err != nil {
		cache.Stop()
		conn.Close()
		return nil, err
	}

	uow := sqlstore.NewUnitOfWork(conn)
	return &runtime{
		cfg:      cfg,
		conn:     conn,
		uow:      uow,
		cache:    cache,
		resolver: resolver,
		registry: registry,
		auth: services.NewAuthenticationProvider(uow, registry,
			services.WithAccessTokenLifetime(cfg.Auth.AccessTokenDuration()),
			services.WithRefreshTokenLifetime(cfg.Auth.RefreshTokenDuration())),
	}, nil
}

func (r *runtime) close() {
	r.cache.Stop()
	r.conn.Close()
}

// connect opens the configured database, retrying with exponential backoff
// while it starts up
func connect(cfg *config.Config) (*sqlstore.Connection, error) {
	logger := slog.Default().With("component", "authctl")

	driver := cfg.Database.Driver
	dsn := cfg.Database.Postgres.ConnectionString()
	if driver == sqlstore.DriverSQLite {
		dsn = sqlstore.SQLiteDSN(cfg.Database.SQLite.Path)
		logger.Info("opening SQLite database", "path", cfg.Database.SQLite.Path)
	} else {
		logger.Info("connecting to PostgreSQL",
			"user", cfg.Database.Postgres.User,
			"host", cfg.Database.Postgres.Host,
			"database", cfg.Database.Postgres.Database)
	}

	const maxRetries = 5
	retryDelay := time.Second
	for i := 0; ; i++ {
		conn, err := sqlstore.NewConnection(driver, dsn)
		if err == nil {
			return conn, nil
		}
		if i == maxRetries-1 {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}
		logger.Warn("failed to connect to database",
			"attempt", i+1,
			"max_retries", maxRetries,
			"error", err,
			"retry_delay", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
	}
}

// commandContext bounds a command's network and database work
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}
