package storage

import (
	"context"

	"github.com/portagedev/portage/pkg/model"
)

// Adapter is the uniform capability contract over a storage backend.
//
// Initialize must be idempotent: calling it twice establishes the
// connection once and never corrupts state. All other operations fail
// with ErrNotInitialized until Initialize has succeeded.
type Adapter interface {
	Initialize(ctx context.Context) error
	Close() error
	Kind() model.BackendKind
	HealthCheck(ctx context.Context) error

	Users() UserRepository
	Posts() PostRepository
	SocialAccounts() SocialAccountRepository
	Preferences() PreferenceRepository

	// Replicator exposes the raw write path used by live sync. It bypasses
	// the repositories' validation so a change already committed on the
	// primary cannot be rejected by the secondary's stricter invariants.
	Replicator() Replicator
}

// UserRepository provides CRUD over user records.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// PostRepository provides CRUD over a user's posts.
type PostRepository interface {
	GetByID(ctx context.Context, id string) (*model.Post, error)
	// ListByUser returns the user's posts ordered by creation time.
	ListByUser(ctx context.Context, userID string) ([]*model.Post, error)
	Create(ctx context.Context, p *model.Post) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// SocialAccountRepository provides CRUD over linked social accounts.
type SocialAccountRepository interface {
	GetByID(ctx context.Context, id string) (*model.SocialAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*model.SocialAccount, error)
	Create(ctx context.Context, a *model.SocialAccount) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// PreferenceRepository provides access to a user's single notification
// preference record.
type PreferenceRepository interface {
	GetByUser(ctx context.Context, userID string) (*model.NotificationPreference, error)
	Create(ctx context.Context, p *model.NotificationPreference) error
	Update(ctx context.Context, userID string, fields map[string]any) error
	Delete(ctx context.Context, userID string) error
}

// Replicator applies pre-normalized field maps keyed by canonical
// snake_case names. Field maps must include the record's owning user id
// where the table has one; the target translates names to its own column
// convention.
type Replicator interface {
	ReplicateCreate(ctx context.Context, table, id string, fields map[string]any) error
	ReplicateUpdate(ctx context.Context, table, id string, fields map[string]any) error
	ReplicateDelete(ctx context.Context, table, id string) error
}
