package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes snapshots to the local filesystem.
type LocalStore struct{}

// NewLocalStore creates a filesystem-backed archive store.
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Put writes data to the file named by key, creating parent directories
// as needed.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if dir := filepath.Dir(key); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create backup directory: %w", err)
		}
	}
	if err := os.WriteFile(key, data, 0644); err != nil {
		return "", fmt.Errorf("write backup file: %w", err)
	}
	abs, err := filepath.Abs(key)
	if err != nil {
		return key, nil
	}
	return abs, nil
}

// Get reads the file named by key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, fmt.Errorf("read backup file: %w", err)
	}
	return data, nil
}
