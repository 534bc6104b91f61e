package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/sqlite"
)

// newBackend builds an initialized sqlite adapter on a throwaway file.
// The sqlite backend exercises the full storage surface without a
// network dependency, so it stands in for either side of a transfer.
func newBackend(t *testing.T) (storage.Adapter, storage.Config) {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "transfer-test.db")
	a := sqlite.New(cfg)
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a, cfg
}

// seedGraph populates a full user graph: one user, two posts, one live
// account, one redacted account and a preference record.
func seedGraph(t *testing.T, a storage.Adapter, userID string) {
	t.Helper()
	ctx := context.Background()

	u := &model.User{ID: userID, Username: "alice", Email: "alice@example.com", PasswordHash: "secret-hash"}
	require.NoError(t, a.Users().Create(ctx, u))

	for i := 0; i < 2; i++ {
		p := &model.Post{
			UserID:    userID,
			Content:   fmt.Sprintf("post %d", i+1),
			Platforms: []string{"mastodon"},
			Status:    "published",
		}
		require.NoError(t, a.Posts().Create(ctx, p))
	}

	require.NoError(t, a.SocialAccounts().Create(ctx, &model.SocialAccount{
		UserID:      userID,
		Platform:    "mastodon",
		AccountName: "@alice",
		AccessToken: "live-token",
	}))

	require.NoError(t, a.Preferences().Create(ctx, model.DefaultNotificationPreference(userID)))
}

// stubResolver maps effective configurations to pre-built adapters,
// standing in for the factory.
type stubResolver struct {
	adapters map[string]storage.Adapter
	fail     map[string]error
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		adapters: make(map[string]storage.Adapter),
		fail:     make(map[string]error),
	}
}

func (r *stubResolver) add(cfg storage.Config, a storage.Adapter) {
	r.adapters[cfg.EffectiveKey()] = a
}

func (r *stubResolver) Resolve(ctx context.Context, cfg storage.Config) (storage.Adapter, error) {
	if err := r.fail[cfg.EffectiveKey()]; err != nil {
		return nil, err
	}
	a, ok := r.adapters[cfg.EffectiveKey()]
	if !ok {
		return nil, fmt.Errorf("no adapter for %s", cfg.EffectiveKey())
	}
	return a, nil
}
