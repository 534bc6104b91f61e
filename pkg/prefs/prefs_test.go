package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/portagedev/portage/pkg/model"
)

func TestGetFallsBackToDefault(t *testing.T) {
	s := NewStore(model.BackendSQLite)
	assert.Equal(t, model.BackendSQLite, s.Get("unknown"))
}

func TestSetAndGet(t *testing.T) {
	s := NewStore(model.BackendSQLite)
	s.Set("u1", model.BackendPostgres)
	assert.Equal(t, model.BackendPostgres, s.Get("u1"))
	assert.Equal(t, model.BackendSQLite, s.Get("u2"))
}

func TestSetIgnoresInvalidKind(t *testing.T) {
	s := NewStore(model.BackendSQLite)
	s.Set("u1", "oracle")
	assert.Equal(t, model.BackendSQLite, s.Get("u1"))
}

func TestNewStoreInvalidDefault(t *testing.T) {
	s := NewStore("oracle")
	assert.Equal(t, model.BackendSQLite, s.Get("u1"))
}

func TestSnapshotAndRestore(t *testing.T) {
	s := NewStore(model.BackendSQLite)
	s.Set("u1", model.BackendPostgres)
	s.Set("u2", model.BackendSQLite)

	snap := s.Snapshot()
	assert.Len(t, snap, 2)

	// Snapshot is a copy, not a view.
	snap["u3"] = model.BackendPostgres
	assert.Equal(t, model.BackendSQLite, s.Get("u3"))

	restored := NewStore(model.BackendSQLite)
	restored.Restore(map[string]model.BackendKind{
		"u1": model.BackendPostgres,
		"u4": "oracle",
	})
	assert.Equal(t, model.BackendPostgres, restored.Get("u1"))
	assert.Equal(t, model.BackendSQLite, restored.Get("u4"))
}
