package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/rjw57/componentsdb/internal/auth/oidc"
)

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig `yaml:"database"`
	Auth        AuthConfig     `yaml:"auth"`
	OIDC        OIDCConfig     `yaml:"oidc"`
	Environment string         `yaml:"environment" default:"local"` // local, dev, prod
	NodeID      int64          `yaml:"node_id" default:"1"`         // Snowflake node ID, unique per process
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" default:"sqlite"` // postgres or sqlite
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"componentsdb"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" default:"disable"` // disable, require, verify-ca, verify-full
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path" default:"componentsdb.db"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	AccessTokenLifetime        int                       `yaml:"access_token_lifetime" default:"3600"`    // seconds
	RefreshTokenLifetime       int                       `yaml:"refresh_token_lifetime" default:"604800"` // seconds
	FederatedIdentityProviders map[string]ProviderConfig `yaml:"federated_identity_providers"`
}

// ProviderConfig holds a federated identity provider's configuration
type ProviderConfig struct {
	Issuer         string   `yaml:"issuer"`                    // OIDC issuer URL, must be https
	Audience       string   `yaml:"audience"`                  // expected aud claim, usually the client ID
	ClaimRules     []string `yaml:"claim_rules,omitempty"`     // CEL expressions over verified claims
	AllowedDomains []string `yaml:"allowed_domains,omitempty"` // Email domain allowlist
	AllowedUsers   []string `yaml:"allowed_users,omitempty"`   // Individual user email allowlist
}

// OIDCConfig holds discovery and key set fetching configuration
type OIDCConfig struct {
	FetchTimeout       time.Duration `yaml:"fetch_timeout" default:"10s"`
	CacheTTL           time.Duration `yaml:"cache_ttl" default:"5m"`
	CacheCapacity      uint64        `yaml:"cache_capacity" default:"256"`
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval" default:"1m"` // per issuer, for unknown signing keys
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// AccessTokenDuration returns the access token lifetime
func (a *AuthConfig) AccessTokenDuration() time.Duration {
	return time.Duration(a.AccessTokenLifetime) * time.Second
}

// RefreshTokenDuration returns the refresh token lifetime
func (a *AuthConfig) RefreshTokenDuration() time.Duration {
	return time.Duration(a.RefreshTokenLifetime) * time.Second
}

// Providers builds the configured federated identity providers, sorted by
// name. Claim rules are compiled here so a bad rule fails at startup.
func (a *AuthConfig) Providers() ([]oidc.Provider, error) {
	names := make([]string, 0, len(a.FederatedIdentityProviders))
	for name := range a.FederatedIdentityProviders {
		names = append(names, name)
	}
	sort.Strings(names)

	providers := make([]oidc.Provider, 0, len(names))
	for _, name := range names {
		pc := a.FederatedIdentityProviders[name]
		provider := oidc.Provider{
			Name:     name,
			Issuer:   pc.Issuer,
			Audience: pc.Audience,
		}
		if len(pc.AllowedDomains) > 0 || len(pc.AllowedUsers) > 0 {
			provider.PostPolicies = append(provider.PostPolicies, oidc.AllowedUsers(pc.AllowedDomains, pc.AllowedUsers))
		}
		for _, rule := range pc.ClaimRules {
			policy, err := oidc.NewCELPolicy(rule)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			provider.PostPolicies = append(provider.PostPolicies, policy)
		}
		providers = append(providers, provider)
	}
	return providers, nil
}
