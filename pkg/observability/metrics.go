package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the persistence engine.
type Metrics struct {
	// Storage metrics
	StorageOperationsTotal *prometheus.CounterVec
	StorageErrorsTotal     *prometheus.CounterVec

	// Migration metrics
	MigrationsTotal      *prometheus.CounterVec
	MigrationDuration    prometheus.Histogram
	RecordsMigratedTotal prometheus.Counter

	// Sync metrics
	SyncEventsTotal          *prometheus.CounterVec
	SyncDroppedTotal         *prometheus.CounterVec
	ReplicationFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portage_storage_operations_total",
				Help: "Total storage operations by backend, table and operation",
			},
			[]string{"backend", "table", "operation"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portage_storage_errors_total",
				Help: "Total storage operation errors by backend and operation",
			},
			[]string{"backend", "operation"},
		),
		MigrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portage_migrations_total",
				Help: "Total migration runs by outcome",
			},
			[]string{"status"},
		),
		MigrationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portage_migration_duration_seconds",
				Help:    "Wall-clock duration of migration runs",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		RecordsMigratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portage_records_migrated_total",
				Help: "Total records written by successful migrations",
			},
		),
		SyncEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portage_sync_events_total",
				Help: "Total change events dispatched to the secondary backend",
			},
			[]string{"table", "operation"},
		),
		SyncDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portage_sync_dropped_total",
				Help: "Change events dropped without reaching the secondary backend",
			},
			[]string{"reason"},
		),
		ReplicationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portage_replication_failures_total",
				Help: "Replication attempts rejected by the secondary backend",
			},
			[]string{"table", "operation"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.StorageOperationsTotal,
			m.StorageErrorsTotal,
			m.MigrationsTotal,
			m.MigrationDuration,
			m.RecordsMigratedTotal,
			m.SyncEventsTotal,
			m.SyncDroppedTotal,
			m.ReplicationFailuresTotal,
		)
	}

	return m
}

// NewNopMetrics returns unregistered metrics for tests and for callers
// that don't run a metrics endpoint.
func NewNopMetrics() *Metrics {
	return NewMetrics(nil)
}
