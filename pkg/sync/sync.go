// Package sync relays change events from the primary backend to a
// shadow copy on the secondary backend, one direction, one dispatcher.
//
// The relay is best-effort: a replication failure is logged with full
// context, counted, and the event dropped. There is no retry queue or
// durable outbox; the dropped-events counter is the only trace.
package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/portagedev/portage/pkg/fieldmap"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/storage"
)

// ChangeOp is the kind of write that happened on the primary.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent describes one committed write on the primary backend. It
// exists only on the in-process bus for the duration of one dispatch.
type ChangeEvent struct {
	Op       ChangeOp
	Table    string
	RecordID string
	// Fields carries the written values for create/update. Either
	// naming convention is accepted; the dispatcher normalizes before
	// handing the payload to the secondary.
	Fields map[string]any
	UserID string
}

// bufferSize bounds the bus. Emission blocks when the secondary lags
// this far behind, which keeps delivery ordered; it never blocks the
// primary write that already completed.
const bufferSize = 256

// Service is the process-wide change relay. It must remain a single
// dispatcher so events reach the secondary in emission order; construct
// exactly one per process at the composition root.
type Service struct {
	log     *observability.Logger
	metrics *observability.Metrics

	enabled   bool
	secondary storage.Adapter

	events chan ChangeEvent
	quit   chan struct{}
	done   chan struct{}

	mu      gosync.Mutex
	started bool
	stopped bool
}

// New determines the sync direction from the configured primary backend
// and returns the relay. Only the networked store can be a primary and
// only the embedded store can be its secondary; any other primary
// disables sync entirely with a logged reason. Passing enabled=false
// yields a relay whose EmitChange is a no-op, so the write path pays
// nothing for a feature it isn't using.
func New(enabled bool, primary model.BackendKind, secondary storage.Adapter, log *observability.Logger, metrics *observability.Metrics) *Service {
	if log == nil {
		log = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	s := &Service{
		log:     log,
		metrics: metrics,
		events:  make(chan ChangeEvent, bufferSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if !enabled {
		return s
	}
	if primary != model.BackendPostgres {
		log.WithField("primary", primary.String()).
			Warn("sync disabled: only the networked store can act as a sync primary")
		return s
	}
	if secondary == nil || secondary.Kind() != model.BackendSQLite {
		log.Warn("sync disabled: the embedded store is the only supported secondary")
		return s
	}

	s.enabled = true
	s.secondary = secondary
	return s
}

// Enabled reports whether the relay will dispatch events.
func (s *Service) Enabled() bool { return s.enabled }

// Start launches the single consumer goroutine. No-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.started {
		return
	}
	s.started = true
	go s.run(ctx)
	s.log.Info("sync service started: postgres -> sqlite")
}

// Stop drains pending events and stops the dispatcher. Events emitted
// after Stop are dropped.
func (s *Service) Stop() {
	s.mu.Lock()
	wasStarted := s.started && !s.stopped
	s.stopped = true
	s.mu.Unlock()
	if !wasStarted {
		return
	}

	close(s.quit)
	<-s.done
}

// EmitChange is the write path's single entry point into the bus. It
// returns without waiting for the secondary write to finish. When sync
// is disabled the call is a no-op. When the buffer is full the send
// waits for the dispatcher rather than reordering or dropping; the
// primary write it describes has already completed.
func (s *Service) EmitChange(ev ChangeEvent) {
	if !s.enabled {
		return
	}
	select {
	case s.events <- ev:
	case <-s.quit:
		s.metrics.SyncDroppedTotal.WithLabelValues("stopped").Inc()
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.dispatch(ctx, ev)
		case <-s.quit:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case ev := <-s.events:
					s.dispatch(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// dispatch normalizes the payload's field names and applies the event to
// the secondary through the raw replication path.
func (s *Service) dispatch(ctx context.Context, ev ChangeEvent) {
	var err error
	switch ev.Op {
	case OpCreate:
		s.metrics.SyncEventsTotal.WithLabelValues(ev.Table, string(ev.Op)).Inc()
		err = s.secondary.Replicator().ReplicateCreate(ctx, ev.Table, ev.RecordID, fieldmap.ToSnake(ev.Table, ev.Fields))
	case OpUpdate:
		s.metrics.SyncEventsTotal.WithLabelValues(ev.Table, string(ev.Op)).Inc()
		err = s.secondary.Replicator().ReplicateUpdate(ctx, ev.Table, ev.RecordID, fieldmap.ToSnake(ev.Table, ev.Fields))
	case OpDelete:
		s.metrics.SyncEventsTotal.WithLabelValues(ev.Table, string(ev.Op)).Inc()
		err = s.secondary.Replicator().ReplicateDelete(ctx, ev.Table, ev.RecordID)
	default:
		err = fmt.Errorf("unknown change op %q", ev.Op)
	}

	if err != nil {
		s.metrics.ReplicationFailuresTotal.WithLabelValues(ev.Table, string(ev.Op)).Inc()
		s.metrics.SyncDroppedTotal.WithLabelValues("replication_failure").Inc()
		s.log.WithFields(map[string]interface{}{
			"operation": string(ev.Op),
			"table":     ev.Table,
			"record_id": ev.RecordID,
			"user_id":   ev.UserID,
			"error":     err.Error(),
		}).Error("replication failed, event dropped")
	}
}
