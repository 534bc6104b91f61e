package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/prefs"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/factory"
)

// cliLogger returns the logger shared by all subcommands. Logs go to
// stderr so command output on stdout stays parseable.
func cliLogger() *observability.Logger {
	level := observability.ParseLogLevel(os.Getenv("PORTAGE_LOG_LEVEL"))
	return observability.NewLogger(level, os.Stderr)
}

// resolveBackend builds an adapter for the named backend kind using
// environment defaults for its locator.
func resolveBackend(ctx context.Context, f *factory.Factory, name string) (storage.Adapter, error) {
	kind, err := model.ParseBackendKind(name)
	if err != nil {
		return nil, err
	}
	return f.Resolve(ctx, storage.ForKind(kind))
}

// preferencesPath returns the per-user preference file location.
func preferencesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".portage", "preferences.json"), nil
}

// loadPreferences reads the preference file into a store. A missing
// file yields an empty store.
func loadPreferences() (*prefs.Store, error) {
	store := prefs.NewStore(model.BackendSQLite)

	path, err := preferencesPath()
	if err != nil {
		return store, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return store, fmt.Errorf("failed to read preferences: %w", err)
	}

	var saved map[string]model.BackendKind
	if err := json.Unmarshal(raw, &saved); err != nil {
		return store, fmt.Errorf("failed to parse preferences: %w", err)
	}
	store.Restore(saved)
	return store, nil
}

// savePreferences persists the store to the preference file.
func savePreferences(store *prefs.Store) error {
	path, err := preferencesPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	raw, err := json.MarshalIndent(store.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
