package transfer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/sqlite"
)

func mirrorGraph(t *testing.T, source, target storage.Adapter, userID string) {
	t.Helper()
	snap := exportGraph(t, source, userID)
	result := NewImporter(target, nil).ImportUser(context.Background(), snap, ImportOptions{})
	require.True(t, result.Success)
}

func TestValidateMigrationMatchingGraphs(t *testing.T) {
	source, _ := newBackend(t)
	target, _ := newBackend(t)
	ctx := context.Background()

	require.NoError(t, source.Users().Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "a@example.com"}))
	require.NoError(t, source.Posts().Create(ctx, &model.Post{UserID: "u1", Content: "hello"}))
	mirrorGraph(t, source, target, "u1")

	errs := ValidateMigration(ctx, "u1", source, target)
	assert.Empty(t, errs)
}

func TestValidateMigrationMissingOnTarget(t *testing.T) {
	source, _ := newBackend(t)
	target, _ := newBackend(t)
	ctx := context.Background()
	seedGraph(t, source, "u1")

	errs := ValidateMigration(ctx, "u1", source, target)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "not found on target")
}

func TestValidateMigrationMissingOnSource(t *testing.T) {
	source, _ := newBackend(t)
	target, _ := newBackend(t)
	ctx := context.Background()
	seedGraph(t, target, "u1")

	errs := ValidateMigration(ctx, "u1", source, target)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "not found on source")
}

func TestValidateMigrationReadFailureIsNotMissingUser(t *testing.T) {
	target, _ := newBackend(t)
	ctx := context.Background()
	seedGraph(t, target, "u1")

	// An adapter that was never initialized fails every read with a
	// backend error, which must not be reported as an absent user.
	cfg := storage.DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "never-opened.db")
	source := sqlite.New(cfg)

	errs := ValidateMigration(ctx, "u1", source, target)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "read user on source")
	assert.NotContains(t, errs[0], "not found")
}

func TestValidateMigrationFieldMismatch(t *testing.T) {
	source, _ := newBackend(t)
	target, _ := newBackend(t)
	ctx := context.Background()

	require.NoError(t, source.Users().Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "a@example.com"}))
	require.NoError(t, target.Users().Create(ctx, &model.User{ID: "u1", Username: "bob", Email: "a@example.com"}))

	errs := ValidateMigration(ctx, "u1", source, target)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], `username: source="alice" target="bob"`)
}

func TestValidateMigrationCountMismatch(t *testing.T) {
	source, _ := newBackend(t)
	target, _ := newBackend(t)
	ctx := context.Background()

	require.NoError(t, source.Users().Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "a@example.com"}))
	require.NoError(t, target.Users().Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "a@example.com"}))
	require.NoError(t, source.Posts().Create(ctx, &model.Post{UserID: "u1", Content: "one"}))
	require.NoError(t, source.Posts().Create(ctx, &model.Post{UserID: "u1", Content: "two"}))
	require.NoError(t, target.Posts().Create(ctx, &model.Post{UserID: "u1", Content: "one"}))

	errs := ValidateMigration(ctx, "u1", source, target)
	assert.Contains(t, strings.Join(errs, "; "), "posts: source=2 target=1")
}

func TestValidateMigrationDoesNotMutate(t *testing.T) {
	source, _ := newBackend(t)
	target, _ := newBackend(t)
	ctx := context.Background()
	seedGraph(t, source, "u1")
	mirrorGraph(t, source, target, "u1")

	before, err := source.Posts().ListByUser(ctx, "u1")
	require.NoError(t, err)

	_ = ValidateMigration(ctx, "u1", source, target)

	after, err := source.Posts().ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
