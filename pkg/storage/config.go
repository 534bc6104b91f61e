package storage

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/portagedev/portage/pkg/model"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	Kind model.BackendKind

	// FallbackKind, when set and different from Kind, is tried once if the
	// primary kind fails to initialize.
	FallbackKind model.BackendKind

	// SQLite config
	SQLitePath string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
}

// DefaultConfig returns the default backend configuration. The embedded
// SQLite store is the default kind: it has no external dependency and is
// always constructible.
func DefaultConfig() Config {
	return Config{
		Kind:             model.BackendSQLite,
		SQLitePath:       "portage.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
	}
}

// FromEnv returns DefaultConfig overridden by PORTAGE_* environment
// variables.
func FromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("PORTAGE_BACKEND"); v != "" {
		if kind, err := model.ParseBackendKind(v); err == nil {
			cfg.Kind = kind
		}
	}
	if v := os.Getenv("PORTAGE_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("PORTAGE_POSTGRES_URL"); v != "" {
		cfg.PostgresURL = v
	}
	if v := os.Getenv("PORTAGE_POSTGRES_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PostgresMaxConns = n
		}
	}
	if v := os.Getenv("PORTAGE_FALLBACK_ENABLED"); v == "true" && cfg.Kind != model.BackendSQLite {
		cfg.FallbackKind = model.BackendSQLite
	}
	return cfg
}

// ForKind returns the environment-derived configuration with the kind
// forced to k.
func ForKind(k model.BackendKind) Config {
	cfg := FromEnv()
	cfg.Kind = k
	cfg.FallbackKind = ""
	return cfg
}

// Locator returns the backend's connection locator: the file path for
// SQLite, the connection URL for Postgres.
func (c Config) Locator() string {
	if c.Kind == model.BackendPostgres {
		return c.PostgresURL
	}
	return c.SQLitePath
}

// EffectiveKey identifies the materially distinct configuration: two
// configs with the same key resolve to the same cached adapter.
func (c Config) EffectiveKey() string {
	return fmt.Sprintf("%s|%s", c.Kind, c.Locator())
}

// Validate checks that the configuration names a constructible backend.
func (c Config) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("invalid backend kind: %q", c.Kind)
	}
	if c.Kind == model.BackendPostgres && c.PostgresURL == "" {
		return fmt.Errorf("postgres backend requires a connection URL")
	}
	if c.Kind == model.BackendSQLite && c.SQLitePath == "" {
		return fmt.Errorf("sqlite backend requires a file path")
	}
	return nil
}
