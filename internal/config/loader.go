package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/rjw57/componentsdb/internal/auth/oidc"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"/etc/componentsdb/config.yaml",
	"/etc/componentsdb/config.yml",
}

// Default returns the configuration used when no file overrides it
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "componentsdb",
				User:     "postgres",
				SSLMode:  "disable",
			},
			SQLite: SQLiteConfig{
				Path: "componentsdb.db",
			},
		},
		Auth: AuthConfig{
			AccessTokenLifetime:  3600,
			RefreshTokenLifetime: 7 * 24 * 3600,
		},
		OIDC: OIDCConfig{
			FetchTimeout:       10 * time.Second,
			CacheTTL:           5 * time.Minute,
			CacheCapacity:      256,
			MinRefreshInterval: time.Minute,
		},
		Environment: "local",
		NodeID:      1,
	}
}

// Load loads the configuration from the specified file or default locations
func Load(configPath string) (*Config, error) {
	config := Default()

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" && fileExists(configPath) {
		slog.Info("loading config", slog.String("path", configPath))
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(config, data); err != nil {
			return nil, err
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("config file %s not found", configPath)
	} else {
		slog.Info("no config file found, using defaults")
	}

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Parse expands environment variables in data and decodes it over config
func Parse(config *Config, data []byte) error {
	if err := yaml.Unmarshal(expandEnvVars(data), config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// validate performs basic validation on the configuration
func validate(config *Config) error {
	switch config.Database.Driver {
	case "postgres":
		if config.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if config.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if config.Database.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	case "sqlite":
		if config.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, not %q", config.Database.Driver)
	}

	if config.Auth.AccessTokenLifetime <= 0 {
		return fmt.Errorf("auth.access_token_lifetime must be positive")
	}
	if config.Auth.RefreshTokenLifetime <= 0 {
		return fmt.Errorf("auth.refresh_token_lifetime must be positive")
	}

	for name, provider := range config.Auth.FederatedIdentityProviders {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("federated identity provider names must not be empty")
		}
		if err := oidc.ValidateIssuer(provider.Issuer); err != nil {
			return fmt.Errorf("federated identity provider %s: %w", name, err)
		}
		if provider.Audience == "" {
			return fmt.Errorf("federated identity provider %s: audience is required", name)
		}
	}

	if config.OIDC.FetchTimeout < 0 || config.OIDC.CacheTTL < 0 || config.OIDC.MinRefreshInterval < 0 {
		return fmt.Errorf("oidc timeouts must not be negative")
	}
	if config.NodeID < 0 || config.NodeID > 1023 {
		return fmt.Errorf("node_id must be between 0 and 1023")
	}
	return nil
}
