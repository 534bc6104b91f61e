package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()

	key := filepath.Join(t.TempDir(), "nested", "dir", "backup.json")
	location, err := store.Put(ctx, key, []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(location))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), data)
}

func TestLocalStoreGetMissing(t *testing.T) {
	_, err := NewLocalStore().Get(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestForPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantKey string
		wantS3  bool
		wantErr bool
	}{
		{name: "local relative path", path: "backups/u1.json", wantKey: "backups/u1.json"},
		{name: "local absolute path", path: "/tmp/u1.json", wantKey: "/tmp/u1.json"},
		{name: "s3 path", path: "s3://bucket/prefix/u1.json", wantKey: "prefix/u1.json", wantS3: true},
		{name: "s3 missing key", path: "s3://bucket", wantErr: true},
		{name: "s3 missing bucket", path: "s3:///key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, key, err := ForPath(tt.path, S3Config{Region: "us-east-1"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			if tt.wantS3 {
				assert.IsType(t, &S3Store{}, store)
			} else {
				assert.IsType(t, &LocalStore{}, store)
			}
		})
	}
}
