package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/snapshot"
	"github.com/portagedev/portage/pkg/storage"
)

// PlaceholderCredential is written as the credential hash of a freshly
// created user. It can never match a real password hash, so the account
// is unusable until an explicit credential reset.
const PlaceholderCredential = "!RESET-REQUIRED!"

// ImportOptions controls the behaviour of an import.
type ImportOptions struct {
	// OverwriteExisting replaces the target user's data graph when the
	// user already exists; otherwise the import fails with a conflict.
	OverwriteExisting bool
	// SkipValidation bypasses snapshot validation. The skip is recorded
	// as a warning so it is never silent.
	SkipValidation bool
}

// ImportResult is the itemized outcome of one import call. Per-record
// write failures accumulate in Errors without aborting the pass; Success
// reports only whether the pass ran to completion.
type ImportResult struct {
	Success         bool     `json:"success"`
	RecordsImported int      `json:"recordsImported"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
}

func (r *ImportResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ImportResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Importer writes validated snapshots into a target adapter.
type Importer struct {
	adapter storage.Adapter
	log     *observability.Logger
}

// NewImporter creates an Importer over the given target adapter.
func NewImporter(adapter storage.Adapter, log *observability.Logger) *Importer {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Importer{adapter: adapter, log: log}
}

// ImportUser validates the snapshot and writes it into the target
// backend in a fixed order: user, posts, social accounts, preferences.
// The sequential order keeps the foreign references valid without the
// target needing deferred constraint checks. Child record identities are
// regenerated by the target and their references rewritten to the owner
// id. The owner id itself stays stable: a fresh import keeps the
// snapshot's user id and an overwrite adopts the target's, so the same
// user remains addressable by one id on both backends and a re-export
// of the written graph passes the snapshot's owner check. Each entity's
// write failure is captured individually and does not abort the
// remaining writes.
func (im *Importer) ImportUser(ctx context.Context, snap *snapshot.Snapshot, opts ImportOptions) *ImportResult {
	result := &ImportResult{}

	if snap == nil {
		result.errorf("no snapshot provided")
		return result
	}

	if opts.SkipValidation {
		result.warnf("snapshot validation skipped by request; integrity not verified")
	} else if errs := validateSnapshot(snap); len(errs) > 0 {
		result.Errors = append(result.Errors, errs...)
		return result
	}
	if snap.Data.User == nil {
		result.errorf("snapshot data is missing the user record")
		return result
	}

	existing, err := im.adapter.Users().GetByID(ctx, snap.UserID)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		result.errorf("check for existing user: %v", err)
		return result
	}
	if existing != nil && !opts.OverwriteExisting {
		result.errorf("user %s already exists in target backend and overwrite was not requested", snap.UserID)
		return result
	}

	ownerID, err := im.writeUser(ctx, snap.Data.User, existing, result)
	if err != nil {
		// Without a target user the rest of the graph has nothing to
		// reference; this is the only write failure that aborts.
		result.errorf("write user: %v", err)
		return result
	}

	for i, post := range snap.Data.Posts {
		p := *post
		p.ID = ""
		p.UserID = ownerID
		if err := im.adapter.Posts().Create(ctx, &p); err != nil {
			result.errorf("post %d: %v", i+1, err)
			continue
		}
		result.RecordsImported++
	}

	for _, acct := range snap.Data.SocialAccounts {
		if acct.AccessToken == snapshot.RedactedToken || acct.RefreshToken == snapshot.RedactedToken {
			result.warnf("social account %s (%s) has redacted tokens and was skipped; reconnect it manually",
				acct.AccountName, acct.Platform)
			continue
		}
		a := *acct
		a.ID = ""
		a.UserID = ownerID
		if err := im.adapter.SocialAccounts().Create(ctx, &a); err != nil {
			result.errorf("social account %s: %v", acct.AccountName, err)
			continue
		}
		result.RecordsImported++
	}

	if prefs := snap.Data.NotificationPreferences; prefs != nil {
		p := *prefs
		p.ID = ""
		p.UserID = ownerID
		if err := im.adapter.Preferences().Create(ctx, &p); err != nil {
			result.errorf("notification preferences: %v", err)
		} else {
			result.RecordsImported++
		}
	}

	result.Success = true

	im.log.WithFields(map[string]interface{}{
		"user_id":  snap.UserID,
		"owner_id": ownerID,
		"backend":  im.adapter.Kind().String(),
		"records":  result.RecordsImported,
		"errors":   len(result.Errors),
	}).Info("import pass completed")

	return result
}

// writeUser creates or overwrites the target user and returns the id the
// rest of the graph must reference.
func (im *Importer) writeUser(ctx context.Context, user *model.User, existing *model.User, result *ImportResult) (string, error) {
	if existing != nil {
		// Overwrite: keep the target's identity and credential, replace
		// the profile fields and clear the old graph so the import is a
		// true replacement rather than an accumulation.
		if err := im.adapter.Users().Update(ctx, existing.ID, map[string]any{
			"username": user.Username,
			"email":    user.Email,
		}); err != nil {
			return "", err
		}
		im.clearGraph(ctx, existing.ID, result)
		result.RecordsImported++
		return existing.ID, nil
	}

	// The owner id is the one identity that stays stable across
	// backends: it scopes conflict detection, validation and sync.
	// Child records get fresh target-assigned identities instead.
	u := *user
	u.PasswordHash = PlaceholderCredential
	if err := im.adapter.Users().Create(ctx, &u); err != nil {
		return "", err
	}
	result.RecordsImported++
	result.warnf("user %s was created with a placeholder credential; an explicit password reset is required", u.Username)
	return u.ID, nil
}

// clearGraph removes the user's existing posts, accounts and preferences
// ahead of an overwriting import. Individual failures are warnings: a
// leftover record surfaces later through post-migration validation.
func (im *Importer) clearGraph(ctx context.Context, userID string, result *ImportResult) {
	if posts, err := im.adapter.Posts().ListByUser(ctx, userID); err == nil {
		for _, p := range posts {
			if err := im.adapter.Posts().Delete(ctx, p.ID); err != nil {
				result.warnf("failed to remove existing post %s: %v", p.ID, err)
			}
		}
	} else {
		result.warnf("failed to list existing posts: %v", err)
	}

	if accounts, err := im.adapter.SocialAccounts().ListByUser(ctx, userID); err == nil {
		for _, a := range accounts {
			if err := im.adapter.SocialAccounts().Delete(ctx, a.ID); err != nil {
				result.warnf("failed to remove existing social account %s: %v", a.ID, err)
			}
		}
	} else {
		result.warnf("failed to list existing social accounts: %v", err)
	}

	if err := im.adapter.Preferences().Delete(ctx, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		result.warnf("failed to remove existing preferences: %v", err)
	}
}

// validateSnapshot checks the snapshot's structure and integrity. The
// checksum is recomputed independently over the data section; a mismatch
// means the snapshot was corrupted in transport or storage and must not
// be partially applied.
func validateSnapshot(snap *snapshot.Snapshot) []string {
	var errs []string
	if snap.UserID == "" {
		errs = append(errs, "snapshot is missing the owner id")
	}
	if snap.Version == "" {
		errs = append(errs, "snapshot is missing a format version")
	}
	if snap.Data.User == nil {
		errs = append(errs, "snapshot data is missing the user record")
	}
	if len(errs) > 0 {
		return errs
	}
	if err := snap.Verify(); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

// ImportFromFile loads a snapshot from disk and delegates to ImportUser.
// Read and parse failures are captured in the result rather than
// escaping this boundary.
func (im *Importer) ImportFromFile(ctx context.Context, path string, opts ImportOptions) *ImportResult {
	snap, err := snapshot.ReadFile(path)
	if err != nil {
		return &ImportResult{Errors: []string{err.Error()}}
	}
	return im.ImportUser(ctx, snap, opts)
}
