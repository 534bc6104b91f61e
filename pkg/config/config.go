// Package config loads application configuration from an optional YAML
// file overlaid with PORTAGE_* environment variables. Environment always
// wins: the file carries the stable deployment shape, the environment
// carries per-process overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/portagedev/portage/pkg/archive"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Storage configuration
	Storage storage.Config

	// Sync configuration
	Sync SyncConfig

	// Archive configuration for s3:// backup destinations
	Archive archive.S3Config

	// Observability configuration
	Observability ObservabilityConfig
}

// SyncConfig controls the continuous replication daemon.
type SyncConfig struct {
	// Enabled turns on the postgres -> sqlite change relay.
	Enabled bool
	// HealthPort serves liveness/readiness probes and metrics.
	HealthPort string
	// BackupSchedule is an optional cron expression for periodic
	// snapshot backups; empty disables them.
	BackupSchedule string
	// BackupDir receives scheduled backups.
	BackupDir string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// fileConfig is the YAML shape of the optional config file.
type fileConfig struct {
	Backend      string `yaml:"backend"`
	FallbackKind string `yaml:"fallback"`
	SQLitePath   string `yaml:"sqlite_path"`
	PostgresURL  string `yaml:"postgres_url"`

	Sync struct {
		Enabled        bool   `yaml:"enabled"`
		HealthPort     string `yaml:"health_port"`
		BackupSchedule string `yaml:"backup_schedule"`
		BackupDir      string `yaml:"backup_dir"`
	} `yaml:"sync"`

	Archive struct {
		Region       string `yaml:"region"`
		Endpoint     string `yaml:"endpoint"`
		AccessKey    string `yaml:"access_key"`
		SecretKey    string `yaml:"secret_key"`
		UsePathStyle bool   `yaml:"use_path_style"`
	} `yaml:"archive"`

	LogLevel string `yaml:"log_level"`
}

// LoadConfig loads configuration from the optional file named by
// PORTAGE_CONFIG_FILE, then applies environment overrides.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("PORTAGE_CONFIG_FILE"))
}

// Load loads configuration from the given file path (empty means no
// file) and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Storage: storage.DefaultConfig(),
		Sync: SyncConfig{
			HealthPort: "9090",
			BackupDir:  "backups",
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			MetricsEnabled: true,
		},
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Backend != "" {
		kind, err := model.ParseBackendKind(fc.Backend)
		if err != nil {
			return err
		}
		c.Storage.Kind = kind
	}
	if fc.FallbackKind != "" {
		kind, err := model.ParseBackendKind(fc.FallbackKind)
		if err != nil {
			return err
		}
		c.Storage.FallbackKind = kind
	}
	if fc.SQLitePath != "" {
		c.Storage.SQLitePath = fc.SQLitePath
	}
	if fc.PostgresURL != "" {
		c.Storage.PostgresURL = fc.PostgresURL
	}

	c.Sync.Enabled = fc.Sync.Enabled
	if fc.Sync.HealthPort != "" {
		c.Sync.HealthPort = fc.Sync.HealthPort
	}
	if fc.Sync.BackupSchedule != "" {
		c.Sync.BackupSchedule = fc.Sync.BackupSchedule
	}
	if fc.Sync.BackupDir != "" {
		c.Sync.BackupDir = fc.Sync.BackupDir
	}

	c.Archive.Region = fc.Archive.Region
	c.Archive.Endpoint = fc.Archive.Endpoint
	c.Archive.AccessKey = fc.Archive.AccessKey
	c.Archive.SecretKey = fc.Archive.SecretKey
	c.Archive.UsePathStyle = fc.Archive.UsePathStyle

	if fc.LogLevel != "" {
		c.Observability.LogLevel = observability.ParseLogLevel(fc.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := getEnv("PORTAGE_BACKEND", ""); v != "" {
		if kind, err := model.ParseBackendKind(v); err == nil {
			c.Storage.Kind = kind
		}
	}
	if v := getEnv("PORTAGE_SQLITE_PATH", ""); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := getEnv("PORTAGE_POSTGRES_URL", ""); v != "" {
		c.Storage.PostgresURL = v
	}
	if n := getEnvInt("PORTAGE_POSTGRES_MAX_CONNS", 0); n > 0 {
		c.Storage.PostgresMaxConns = n
	}
	if n := getEnvInt("PORTAGE_POSTGRES_MIN_CONNS", 0); n > 0 {
		c.Storage.PostgresMinConns = n
	}
	if d := getEnvDuration("PORTAGE_POSTGRES_TIMEOUT", 0); d > 0 {
		c.Storage.PostgresTimeout = d
	}
	if getEnvBool("PORTAGE_FALLBACK_ENABLED", false) && c.Storage.Kind != model.BackendSQLite {
		c.Storage.FallbackKind = model.BackendSQLite
	}

	if v := getEnv("PORTAGE_SYNC_ENABLED", ""); v != "" {
		c.Sync.Enabled = strings.ToLower(v) == "true"
	}
	if v := getEnv("PORTAGE_HEALTH_PORT", ""); v != "" {
		c.Sync.HealthPort = v
	}
	if v := getEnv("PORTAGE_BACKUP_SCHEDULE", ""); v != "" {
		c.Sync.BackupSchedule = v
	}
	if v := getEnv("PORTAGE_BACKUP_DIR", ""); v != "" {
		c.Sync.BackupDir = v
	}

	if v := getEnv("PORTAGE_S3_REGION", ""); v != "" {
		c.Archive.Region = v
	}
	if v := getEnv("PORTAGE_S3_ENDPOINT", ""); v != "" {
		c.Archive.Endpoint = v
	}
	if v := getEnv("PORTAGE_S3_ACCESS_KEY", ""); v != "" {
		c.Archive.AccessKey = v
	}
	if v := getEnv("PORTAGE_S3_SECRET_KEY", ""); v != "" {
		c.Archive.SecretKey = v
	}
	if v := getEnv("PORTAGE_S3_USE_PATH_STYLE", ""); v != "" {
		c.Archive.UsePathStyle = strings.ToLower(v) == "true"
	}

	if v := getEnv("PORTAGE_LOG_LEVEL", ""); v != "" {
		c.Observability.LogLevel = observability.ParseLogLevel(v)
	}
	if v := getEnv("PORTAGE_METRICS_ENABLED", ""); v != "" {
		c.Observability.MetricsEnabled = strings.ToLower(v) == "true"
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Sync.Enabled && c.Storage.Kind != model.BackendPostgres {
		return fmt.Errorf("sync requires the postgres backend as primary, got %s", c.Storage.Kind)
	}
	return nil
}

// getEnv returns an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
