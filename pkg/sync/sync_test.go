package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagedev/portage/pkg/fieldmap"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/sqlite"
)

func newSecondary(t *testing.T) storage.Adapter {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "sync-test.db")
	a := sqlite.New(cfg)
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a
}

func seedOwner(t *testing.T, a storage.Adapter) {
	t.Helper()
	u := &model.User{ID: "u1", Username: "alice", Email: "a@example.com"}
	require.NoError(t, a.Users().Create(context.Background(), u))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewDirectionRules(t *testing.T) {
	secondary := newSecondary(t)

	tests := []struct {
		name        string
		enabled     bool
		primary     model.BackendKind
		secondary   storage.Adapter
		wantEnabled bool
	}{
		{"postgres to sqlite", true, model.BackendPostgres, secondary, true},
		{"disabled by flag", false, model.BackendPostgres, secondary, false},
		{"sqlite primary unsupported", true, model.BackendSQLite, secondary, false},
		{"nil secondary", true, model.BackendPostgres, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.enabled, tt.primary, tt.secondary, nil, nil)
			assert.Equal(t, tt.wantEnabled, s.Enabled())
		})
	}
}

func TestEmitChangeNoOpWhenDisabled(t *testing.T) {
	s := New(false, model.BackendPostgres, nil, nil, nil)
	// Must return immediately without a consumer running.
	for i := 0; i < bufferSize*2; i++ {
		s.EmitChange(ChangeEvent{Op: OpCreate, Table: fieldmap.TablePosts, RecordID: "p1"})
	}
}

func TestRelayCreateUpdateDelete(t *testing.T) {
	secondary := newSecondary(t)
	seedOwner(t, secondary)
	ctx := context.Background()

	s := New(true, model.BackendPostgres, secondary, nil, nil)
	s.Start(ctx)
	defer s.Stop()

	now := time.Now().UTC()
	s.EmitChange(ChangeEvent{
		Op:       OpCreate,
		Table:    fieldmap.TablePosts,
		RecordID: "p1",
		UserID:   "u1",
		Fields: map[string]any{
			"user_id":    "u1",
			"content":    "hello",
			"status":     "draft",
			"created_at": now,
			"updated_at": now,
		},
	})

	waitFor(t, func() bool {
		_, err := secondary.Posts().GetByID(ctx, "p1")
		return err == nil
	})

	s.EmitChange(ChangeEvent{
		Op:       OpUpdate,
		Table:    fieldmap.TablePosts,
		RecordID: "p1",
		UserID:   "u1",
		Fields:   map[string]any{"status": "published"},
	})

	waitFor(t, func() bool {
		p, err := secondary.Posts().GetByID(ctx, "p1")
		return err == nil && p.Status == "published"
	})

	s.EmitChange(ChangeEvent{Op: OpDelete, Table: fieldmap.TablePosts, RecordID: "p1", UserID: "u1"})

	waitFor(t, func() bool {
		_, err := secondary.Posts().GetByID(ctx, "p1")
		return err != nil
	})
}

func TestRelayNormalizesLegacyFieldNames(t *testing.T) {
	secondary := newSecondary(t)
	seedOwner(t, secondary)
	ctx := context.Background()

	s := New(true, model.BackendPostgres, secondary, nil, nil)
	s.Start(ctx)
	defer s.Stop()

	now := time.Now().UTC()
	s.EmitChange(ChangeEvent{
		Op:       OpCreate,
		Table:    fieldmap.TablePosts,
		RecordID: "p1",
		UserID:   "u1",
		Fields: map[string]any{
			"userId":    "u1",
			"content":   "camel payload",
			"status":    "draft",
			"createdAt": now,
			"updatedAt": now,
		},
	})

	waitFor(t, func() bool {
		p, err := secondary.Posts().GetByID(ctx, "p1")
		return err == nil && p.UserID == "u1"
	})
}

func TestEventsDispatchInOrder(t *testing.T) {
	secondary := newSecondary(t)
	seedOwner(t, secondary)
	ctx := context.Background()

	s := New(true, model.BackendPostgres, secondary, nil, nil)
	s.Start(ctx)

	now := time.Now().UTC()
	s.EmitChange(ChangeEvent{
		Op: OpCreate, Table: fieldmap.TablePosts, RecordID: "p1", UserID: "u1",
		Fields: map[string]any{
			"user_id": "u1", "content": "v0", "status": "draft",
			"created_at": now, "updated_at": now,
		},
	})
	for i := 1; i <= 20; i++ {
		s.EmitChange(ChangeEvent{
			Op: OpUpdate, Table: fieldmap.TablePosts, RecordID: "p1", UserID: "u1",
			Fields: map[string]any{"content": "v" + string(rune('0'+i%10)), "status": "draft"},
		})
	}
	s.EmitChange(ChangeEvent{
		Op: OpUpdate, Table: fieldmap.TablePosts, RecordID: "p1", UserID: "u1",
		Fields: map[string]any{"content": "final"},
	})

	// Stop drains the queue, so the last update must have won.
	s.Stop()

	p, err := secondary.Posts().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "final", p.Content)
}

func TestReplicationFailureDropsEvent(t *testing.T) {
	secondary := newSecondary(t)
	ctx := context.Background()

	s := New(true, model.BackendPostgres, secondary, nil, nil)
	s.Start(ctx)

	// Unknown table fails replication; the relay must keep going.
	s.EmitChange(ChangeEvent{Op: OpCreate, Table: "sessions", RecordID: "s1", Fields: map[string]any{}})

	seedOwner(t, secondary)
	now := time.Now().UTC()
	s.EmitChange(ChangeEvent{
		Op: OpCreate, Table: fieldmap.TablePosts, RecordID: "p1", UserID: "u1",
		Fields: map[string]any{
			"user_id": "u1", "content": "after failure", "status": "draft",
			"created_at": now, "updated_at": now,
		},
	})

	waitFor(t, func() bool {
		_, err := secondary.Posts().GetByID(ctx, "p1")
		return err == nil
	})
	s.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	secondary := newSecondary(t)

	s := New(true, model.BackendPostgres, secondary, nil, nil)
	s.Start(context.Background())
	s.Stop()
	s.Stop()

	// Emission after stop drops instead of blocking.
	s.EmitChange(ChangeEvent{Op: OpDelete, Table: fieldmap.TablePosts, RecordID: "p1"})
}

func TestStopWithoutStart(t *testing.T) {
	s := New(true, model.BackendPostgres, newSecondary(t), nil, nil)
	s.Stop()
}
