// Package transfer moves a user's data graph between storage backends:
// point-in-time export to a portable snapshot, snapshot import with
// identity regeneration, and the migration workflow that chains the two
// with backup and validation.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/snapshot"
	"github.com/portagedev/portage/pkg/storage"
)

// Exporter reads a user's entire data graph into a snapshot.
type Exporter struct {
	adapter storage.Adapter
	log     *observability.Logger
}

// NewExporter creates an Exporter over the given source adapter.
func NewExporter(adapter storage.Adapter, log *observability.Logger) *Exporter {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Exporter{adapter: adapter, log: log}
}

// ExportUser fetches the user graph and produces a redacted, checksummed
// snapshot. The four reads run concurrently; a missing user record fails
// fast, while empty posts and accounts are legitimate.
//
// Redaction is a deliberate one-way transform: the credential hash is
// stripped entirely and OAuth tokens are replaced with the redaction
// sentinel, so a snapshot can restore structural data but can never
// resurrect live third-party sessions.
func (e *Exporter) ExportUser(ctx context.Context, userID string) (*snapshot.Snapshot, error) {
	var (
		user     *model.User
		posts    []*model.Post
		accounts []*model.SocialAccount
		prefs    *model.NotificationPreference
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := e.adapter.Users().GetByID(gctx, userID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	g.Go(func() error {
		p, err := e.adapter.Posts().ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch posts: %w", err)
		}
		posts = p
		return nil
	})
	g.Go(func() error {
		a, err := e.adapter.SocialAccounts().ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch social accounts: %w", err)
		}
		accounts = a
		return nil
	})
	g.Go(func() error {
		p, err := e.adapter.Preferences().GetByUser(gctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("fetch preferences: %w", err)
		}
		prefs = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	redacted := *user
	redacted.PasswordHash = ""

	redactedAccounts := make([]*model.SocialAccount, 0, len(accounts))
	for _, acct := range accounts {
		a := *acct
		a.AccessToken = snapshot.RedactedToken
		if a.RefreshToken != "" {
			a.RefreshToken = snapshot.RedactedToken
		}
		redactedAccounts = append(redactedAccounts, &a)
	}

	if prefs == nil {
		prefs = model.DefaultNotificationPreference(userID)
	}

	data := snapshot.Data{
		User:                    &redacted,
		Posts:                   posts,
		SocialAccounts:          redactedAccounts,
		NotificationPreferences: prefs,
	}

	checksum, err := snapshot.ComputeChecksum(data)
	if err != nil {
		return nil, err
	}

	snap := &snapshot.Snapshot{
		UserID:     userID,
		ExportDate: time.Now().UTC(),
		Version:    snapshot.FormatVersion,
		Data:       data,
		Metadata: snapshot.Metadata{
			TotalRecords: data.RecordCount(),
			Checksum:     checksum,
		},
	}

	e.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"backend": e.adapter.Kind().String(),
		"records": snap.Metadata.TotalRecords,
	}).Info("exported user data graph")

	return snap, nil
}

// ExportToFile exports the user graph and persists the snapshot to path.
// When the write fails the returned snapshot is still valid alongside
// the error; only the durable copy is missing.
func (e *Exporter) ExportToFile(ctx context.Context, userID, path string) (*snapshot.Snapshot, error) {
	snap, err := e.ExportUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := snap.WriteFile(path); err != nil {
		return snap, err
	}
	e.log.WithField("path", path).Info("snapshot written")
	return snap, nil
}
