package transfer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/snapshot"
	"github.com/portagedev/portage/pkg/storage"
)

func TestExportUser(t *testing.T) {
	a, _ := newBackend(t)
	seedGraph(t, a, "u1")
	ctx := context.Background()

	snap, err := NewExporter(a, nil).ExportUser(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, snapshot.FormatVersion, snap.Version)
	assert.False(t, snap.ExportDate.IsZero())

	// user + 2 posts + 1 account + preferences
	assert.Equal(t, 5, snap.Metadata.TotalRecords)
	assert.NoError(t, snap.Verify())

	require.NotNil(t, snap.Data.User)
	assert.Equal(t, "alice", snap.Data.User.Username)
	assert.Len(t, snap.Data.Posts, 2)
	assert.Len(t, snap.Data.SocialAccounts, 1)
	require.NotNil(t, snap.Data.NotificationPreferences)
}

func TestExportRedactsCredentials(t *testing.T) {
	a, _ := newBackend(t)
	seedGraph(t, a, "u1")
	ctx := context.Background()

	require.NoError(t, a.SocialAccounts().Create(ctx, &model.SocialAccount{
		UserID:       "u1",
		Platform:     "bluesky",
		AccountName:  "@alice.bsky",
		AccessToken:  "live-access",
		RefreshToken: "live-refresh",
	}))

	snap, err := NewExporter(a, nil).ExportUser(ctx, "u1")
	require.NoError(t, err)

	assert.Empty(t, snap.Data.User.PasswordHash)
	for _, acct := range snap.Data.SocialAccounts {
		assert.Equal(t, snapshot.RedactedToken, acct.AccessToken)
		if acct.RefreshToken != "" {
			assert.Equal(t, snapshot.RedactedToken, acct.RefreshToken)
		}
	}

	// Redaction must not touch the stored records.
	accounts, err := a.SocialAccounts().ListByUser(ctx, "u1")
	require.NoError(t, err)
	tokens := make(map[string]bool)
	for _, acct := range accounts {
		tokens[acct.AccessToken] = true
	}
	assert.True(t, tokens["live-token"])
	assert.True(t, tokens["live-access"])
}

func TestExportMissingUser(t *testing.T) {
	a, _ := newBackend(t)

	_, err := NewExporter(a, nil).ExportUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestExportSynthesizesDefaultPreferences(t *testing.T) {
	a, _ := newBackend(t)
	ctx := context.Background()
	require.NoError(t, a.Users().Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "a@example.com"}))

	snap, err := NewExporter(a, nil).ExportUser(ctx, "u1")
	require.NoError(t, err)

	require.NotNil(t, snap.Data.NotificationPreferences)
	assert.True(t, snap.Data.NotificationPreferences.EmailEnabled)
	assert.Equal(t, "daily", snap.Data.NotificationPreferences.DigestFrequency)
	// user + preferences, no posts or accounts
	assert.Equal(t, 2, snap.Metadata.TotalRecords)
}

func TestExportToFile(t *testing.T) {
	a, _ := newBackend(t)
	seedGraph(t, a, "u1")

	path := filepath.Join(t.TempDir(), "export.json")
	snap, err := NewExporter(a, nil).ExportToFile(context.Background(), "u1", path)
	require.NoError(t, err)

	loaded, err := snapshot.ReadFile(path)
	require.NoError(t, err)
	assert.NoError(t, loaded.Verify())
	assert.Equal(t, snap.Metadata.Checksum, loaded.Metadata.Checksum)
}

func TestExportToFileWriteFailureKeepsSnapshot(t *testing.T) {
	a, _ := newBackend(t)
	seedGraph(t, a, "u1")

	snap, err := NewExporter(a, nil).ExportToFile(context.Background(), "u1",
		filepath.Join(t.TempDir(), "missing-dir", "export.json"))
	require.Error(t, err)
	require.NotNil(t, snap)
	assert.NoError(t, snap.Verify())
}
