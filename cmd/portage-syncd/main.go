package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/portagedev/portage/pkg/archive"
	"github.com/portagedev/portage/pkg/config"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/factory"
	"github.com/portagedev/portage/pkg/sync"
	"github.com/portagedev/portage/pkg/transfer"
)

// Flags holds the daemon command-line configuration
type Flags struct {
	ConfigFile     string
	LogLevel       string
	HealthPort     string
	BackupSchedule string
	BackupDir      string
	BackupUsers    string
}

// Sync daemon: relays postgres changes into the sqlite replica, serves
// health and metrics endpoints, and takes scheduled snapshot backups.
//
// The relay consumes events emitted through sync.Service.EmitChange.
// The daemon performs no writes of its own: it is the hosting process
// for an application write path that emits change events after each
// committed primary write. Without such a producer the service only
// reports its enabled state.
func main() {
	flags := parseFlags()

	logger := setupLogger(flags.LogLevel)
	logger.Info("Starting Portage Sync Daemon")

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlagOverrides(cfg, flags)

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resolve both backends up front so a misconfigured daemon fails
	// fast instead of at first use.
	fct := factory.New(log).WithMetrics(metrics)
	primary, err := fct.Resolve(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize primary backend: %v", err)
	}
	replica, err := fct.Resolve(ctx, storage.ForKind(model.BackendSQLite))
	if err != nil {
		logger.Fatalf("Failed to initialize sqlite replica: %v", err)
	}

	syncSvc := sync.New(cfg.Sync.Enabled, cfg.Storage.Kind, replica, log, metrics)
	syncSvc.Start(ctx)
	defer syncSvc.Stop()

	// Health and metrics endpoints
	checker := observability.NewHealthChecker(map[string]observability.Pinger{
		string(primary.Kind()): primary,
		string(replica.Kind()): replica,
	}, registry)

	server := &http.Server{
		Addr:    ":" + cfg.Sync.HealthPort,
		Handler: checker.Router(),
	}
	go func() {
		logger.Infof("Health server listening on :%s", cfg.Sync.HealthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Health server failed: %v", err)
		}
	}()

	// Scheduled snapshot backups
	scheduler := cron.New()
	if cfg.Sync.BackupSchedule != "" {
		users := splitUsers(flags.BackupUsers)
		if len(users) == 0 {
			logger.Warn("Backup schedule set but no backup users given, skipping scheduled backups")
		} else {
			_, err := scheduler.AddFunc(cfg.Sync.BackupSchedule, func() {
				runBackups(ctx, logger, primary, users, cfg)
			})
			if err != nil {
				logger.Fatalf("Failed to schedule backups: %v", err)
			}
			scheduler.Start()
			logger.Infof("Backup schedule: %s (%d users)", cfg.Sync.BackupSchedule, len(users))
		}
	}

	// Reload adapters when the config file changes
	if flags.ConfigFile != "" {
		go func() {
			err := config.Watch(ctx, flags.ConfigFile, log, func(newCfg *config.Config) {
				fct.Reset()
				logger.Info("Configuration changed, storage adapters reset")
			})
			if err != nil && ctx.Err() == nil {
				logger.Errorf("Config watcher stopped: %v", err)
			}
		}()
	}

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Health server shutdown failed: %v", err)
	}

	syncSvc.Stop()
	cancel()
	fct.Reset()

	logger.Info("Sync daemon stopped")
}

func parseFlags() *Flags {
	flags := &Flags{}

	flag.StringVar(&flags.ConfigFile, "config", getEnv("PORTAGE_CONFIG_FILE", ""), "Path to YAML config file")
	flag.StringVar(&flags.LogLevel, "log-level", getEnv("PORTAGE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.StringVar(&flags.HealthPort, "health-port", "", "Health and metrics port (overrides config)")
	flag.StringVar(&flags.BackupSchedule, "backup-schedule", "", "Cron schedule for snapshot backups (overrides config)")
	flag.StringVar(&flags.BackupDir, "backup-dir", "", "Backup destination directory or s3://bucket/prefix (overrides config)")
	flag.StringVar(&flags.BackupUsers, "backup-users", getEnv("PORTAGE_BACKUP_USERS", ""), "Comma-separated user IDs to back up on schedule")

	flag.Parse()

	return flags
}

func applyFlagOverrides(cfg *config.Config, flags *Flags) {
	if flags.HealthPort != "" {
		cfg.Sync.HealthPort = flags.HealthPort
	}
	if flags.BackupSchedule != "" {
		cfg.Sync.BackupSchedule = flags.BackupSchedule
	}
	if flags.BackupDir != "" {
		cfg.Sync.BackupDir = flags.BackupDir
	}
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func splitUsers(raw string) []string {
	var users []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}
	return users
}

// runBackups exports each user from the primary backend and writes the
// snapshot to the configured archive destination. Per-user failures are
// logged and do not stop the rest of the run.
func runBackups(ctx context.Context, logger *logrus.Logger, primary storage.Adapter, users []string, cfg *config.Config) {
	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)
	exporter := transfer.NewExporter(primary, log)

	for _, userID := range users {
		snap, err := exporter.ExportUser(ctx, userID)
		if err != nil {
			logger.Errorf("Backup export failed for user %s: %v", userID, err)
			continue
		}

		raw, err := snap.Marshal()
		if err != nil {
			logger.Errorf("Backup marshal failed for user %s: %v", userID, err)
			continue
		}

		dest := fmt.Sprintf("%s/portage-backup-%s-%d.json",
			strings.TrimSuffix(cfg.Sync.BackupDir, "/"), userID, time.Now().Unix())
		store, key, err := archive.ForPath(dest, cfg.Archive)
		if err != nil {
			logger.Errorf("Backup destination invalid for user %s: %v", userID, err)
			continue
		}
		location, err := store.Put(ctx, key, raw)
		if err != nil {
			logger.Errorf("Backup write failed for user %s: %v", userID, err)
			continue
		}
		logger.Infof("Backed up user %s (%d records) to %s", userID, snap.Metadata.TotalRecords, location)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
