package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/portagedev/portage/pkg/archive"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/snapshot"
	"github.com/portagedev/portage/pkg/storage"
)

// AdapterResolver resolves a backend configuration to an initialized
// adapter. Satisfied by factory.Factory.
type AdapterResolver interface {
	Resolve(ctx context.Context, cfg storage.Config) (storage.Adapter, error)
}

// MigrateOptions controls one migration run.
type MigrateOptions struct {
	// BackupPath, when set, persists the snapshot before the target is
	// touched. A local file path or an s3://bucket/key location.
	BackupPath string
	// ValidateAfter compares the two backends after the import.
	ValidateAfter bool
}

// MigrationResult is the itemized outcome of one migration run.
type MigrationResult struct {
	Success         bool          `json:"success"`
	RecordsMigrated int           `json:"recordsMigrated"`
	Errors          []string      `json:"errors"`
	Warnings        []string      `json:"warnings"`
	BackupPath      string        `json:"backupPath,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Migrator orchestrates export, backup, import and validation as one
// workflow with a single pass/fail outcome. Step failures short-circuit
// the remainder and are captured in the result, never thrown past it.
type Migrator struct {
	resolver AdapterResolver
	log      *observability.Logger
	metrics  *observability.Metrics
	s3cfg    archive.S3Config
}

// NewMigrator creates a Migrator.
func NewMigrator(resolver AdapterResolver, log *observability.Logger, metrics *observability.Metrics) *Migrator {
	if log == nil {
		log = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Migrator{resolver: resolver, log: log, metrics: metrics}
}

// WithS3Config sets the object-store configuration used for s3:// backup
// paths.
func (m *Migrator) WithS3Config(cfg archive.S3Config) *Migrator {
	m.s3cfg = cfg
	return m
}

// Migrate moves one user's data graph from the source backend to the
// target backend. Migration is an explicit, intentional overwrite: the
// import always runs with OverwriteExisting set and full validation on.
// Once the import phase begins, partially imported data is not rolled
// back on a later failure.
func (m *Migrator) Migrate(ctx context.Context, userID string, sourceCfg, targetCfg storage.Config, opts MigrateOptions) *MigrationResult {
	start := time.Now()
	result := &MigrationResult{}
	defer func() {
		result.Duration = time.Since(start)
		status := "failure"
		if result.Success {
			status = "success"
		}
		m.metrics.MigrationsTotal.WithLabelValues(status).Inc()
		m.metrics.MigrationDuration.Observe(result.Duration.Seconds())
	}()

	log := m.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"source":  sourceCfg.Kind.String(),
		"target":  targetCfg.Kind.String(),
	})
	log.Info("starting migration")

	source, err := m.resolver.Resolve(ctx, sourceCfg)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("resolve source backend: %v", err))
		return result
	}

	snap, err := NewExporter(source, m.log).ExportUser(ctx, userID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("export: %v", err))
		return result
	}

	// The backup lands strictly between export and import so a
	// target-side failure still leaves a usable copy.
	if opts.BackupPath != "" {
		location, err := m.writeBackup(ctx, snap, opts.BackupPath)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("backup: %v", err))
			return result
		}
		result.BackupPath = location
		result.Warnings = append(result.Warnings, fmt.Sprintf("backup written to %s", location))
	}

	target, err := m.resolver.Resolve(ctx, targetCfg)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("resolve target backend: %v", err))
		return result
	}

	importResult := NewImporter(target, m.log).ImportUser(ctx, snap, ImportOptions{
		OverwriteExisting: true,
		SkipValidation:    false,
	})
	result.RecordsMigrated = importResult.RecordsImported
	result.Errors = append(result.Errors, importResult.Errors...)
	result.Warnings = append(result.Warnings, importResult.Warnings...)
	if !importResult.Success {
		return result
	}

	if opts.ValidateAfter {
		// Both adapters are re-resolved so validation observes the same
		// state a fresh client would.
		if errs := m.Validate(ctx, userID, sourceCfg, targetCfg); len(errs) > 0 {
			result.Errors = append(result.Errors, errs...)
			return result
		}
	}

	result.Success = true
	m.metrics.RecordsMigratedTotal.Add(float64(result.RecordsMigrated))
	log.WithFields(map[string]interface{}{
		"records":  result.RecordsMigrated,
		"duration": time.Since(start).String(),
	}).Info("migration completed")
	return result
}

// QuickMigrate is the safe default path for interactive use: configs are
// derived from bare backend kinds, a timestamped backup is always taken
// and the result is always validated.
func (m *Migrator) QuickMigrate(ctx context.Context, userID string, from, to model.BackendKind) *MigrationResult {
	backupPath := fmt.Sprintf("portage-backup-%s-%d.json", userID, time.Now().Unix())
	return m.Migrate(ctx, userID, storage.ForKind(from), storage.ForKind(to), MigrateOptions{
		BackupPath:    backupPath,
		ValidateAfter: true,
	})
}

func (m *Migrator) writeBackup(ctx context.Context, snap *snapshot.Snapshot, path string) (string, error) {
	data, err := snap.Marshal()
	if err != nil {
		return "", err
	}
	store, key, err := archive.ForPath(path, m.s3cfg)
	if err != nil {
		return "", err
	}
	return store.Put(ctx, key, data)
}

// Validate re-resolves both backends and compares them for the user.
func (m *Migrator) Validate(ctx context.Context, userID string, sourceCfg, targetCfg storage.Config) []string {
	source, err := m.resolver.Resolve(ctx, sourceCfg)
	if err != nil {
		return []string{fmt.Sprintf("resolve source backend for validation: %v", err)}
	}
	target, err := m.resolver.Resolve(ctx, targetCfg)
	if err != nil {
		return []string{fmt.Sprintf("resolve target backend for validation: %v", err)}
	}
	return ValidateMigration(ctx, userID, source, target)
}
