// Package prefs tracks each user's preferred storage backend.
package prefs

import (
	"sync"

	"github.com/portagedev/portage/pkg/model"
)

// Store is an in-memory mapping from user id to preferred backend kind.
// It lives for the process lifetime; a caller wanting durability must
// serialize the Snapshot externally.
type Store struct {
	mu          sync.RWMutex
	prefs       map[string]model.BackendKind
	defaultKind model.BackendKind
}

// NewStore creates a preference store that falls back to defaultKind for
// users with no recorded preference.
func NewStore(defaultKind model.BackendKind) *Store {
	if !defaultKind.Valid() {
		defaultKind = model.BackendSQLite
	}
	return &Store{
		prefs:       make(map[string]model.BackendKind),
		defaultKind: defaultKind,
	}
}

// Get returns the user's preferred backend, or the default.
func (s *Store) Get(userID string) model.BackendKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind, ok := s.prefs[userID]; ok {
		return kind
	}
	return s.defaultKind
}

// Set records the user's preferred backend. Invalid kinds are ignored.
func (s *Store) Set(userID string, kind model.BackendKind) {
	if !kind.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = kind
}

// Snapshot returns a copy of all recorded preferences for external
// serialization.
func (s *Store) Snapshot() map[string]model.BackendKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.BackendKind, len(s.prefs))
	for k, v := range s.prefs {
		out[k] = v
	}
	return out
}

// Restore merges previously serialized preferences into the store.
func (s *Store) Restore(prefs map[string]model.BackendKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, kind := range prefs {
		if kind.Valid() {
			s.prefs[userID] = kind
		}
	}
}
