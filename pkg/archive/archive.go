// Package archive stores snapshot backups durably, on the local
// filesystem or in an S3-compatible object store.
package archive

import (
	"context"
	"fmt"
	"strings"
)

// Store is a destination for serialized snapshots.
type Store interface {
	// Put writes data under key and returns the full location of the
	// stored object.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get reads the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3Config parameterizes the object-store destination.
type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ForPath picks a store for the given backup path. Paths of the form
// s3://bucket/key go to the object store; everything else is a local
// file path.
func ForPath(path string, s3cfg S3Config) (Store, string, error) {
	if strings.HasPrefix(path, "s3://") {
		trimmed := strings.TrimPrefix(path, "s3://")
		bucket, key, ok := strings.Cut(trimmed, "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid s3 backup path %q, want s3://bucket/key", path)
		}
		store, err := NewS3Store(bucket, s3cfg)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	}
	return NewLocalStore(), path, nil
}
