package storage

import (
	"errors"
	"fmt"

	"github.com/portagedev/portage/pkg/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUserNotFound is returned when the owning user record is absent.
	ErrUserNotFound = errors.New("user not found")

	// ErrConflict is returned when a write collides with an existing record.
	ErrConflict = errors.New("record already exists")

	// ErrNotInitialized is returned when an adapter is used before
	// Initialize has succeeded.
	ErrNotInitialized = errors.New("adapter not initialized")
)

// ConnectivityError reports that a backend is unreachable or misconfigured.
// The factory's fallback path triggers on this class of failure.
type ConnectivityError struct {
	Kind model.BackendKind
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Kind, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// NewConnectivityError wraps a driver-level failure with the backend it
// came from.
func NewConnectivityError(kind model.BackendKind, err error) *ConnectivityError {
	return &ConnectivityError{Kind: kind, Err: err}
}
