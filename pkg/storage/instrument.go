package storage

import (
	"context"

	"github.com/portagedev/portage/pkg/fieldmap"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
)

// Instrument wraps an adapter so every repository and replication
// operation increments the storage counters, with failed operations
// counted separately. A nil metrics sink returns the adapter unwrapped.
func Instrument(a Adapter, m *observability.Metrics) Adapter {
	if m == nil {
		return a
	}
	return &instrumentedAdapter{inner: a, metrics: m}
}

type instrumentedAdapter struct {
	inner   Adapter
	metrics *observability.Metrics
}

func (ia *instrumentedAdapter) observe(table, op string, err error) {
	backend := string(ia.inner.Kind())
	ia.metrics.StorageOperationsTotal.WithLabelValues(backend, table, op).Inc()
	if err != nil {
		ia.metrics.StorageErrorsTotal.WithLabelValues(backend, op).Inc()
	}
}

func (ia *instrumentedAdapter) Initialize(ctx context.Context) error { return ia.inner.Initialize(ctx) }

func (ia *instrumentedAdapter) Close() error { return ia.inner.Close() }

func (ia *instrumentedAdapter) Kind() model.BackendKind { return ia.inner.Kind() }

func (ia *instrumentedAdapter) HealthCheck(ctx context.Context) error {
	return ia.inner.HealthCheck(ctx)
}

func (ia *instrumentedAdapter) Users() UserRepository {
	return instrumentedUsers{ia.inner.Users(), ia}
}

func (ia *instrumentedAdapter) Posts() PostRepository {
	return instrumentedPosts{ia.inner.Posts(), ia}
}

func (ia *instrumentedAdapter) SocialAccounts() SocialAccountRepository {
	return instrumentedAccounts{ia.inner.SocialAccounts(), ia}
}

func (ia *instrumentedAdapter) Preferences() PreferenceRepository {
	return instrumentedPrefs{ia.inner.Preferences(), ia}
}

func (ia *instrumentedAdapter) Replicator() Replicator {
	return instrumentedReplicator{ia.inner.Replicator(), ia}
}

type instrumentedUsers struct {
	r  UserRepository
	ia *instrumentedAdapter
}

func (u instrumentedUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	rec, err := u.r.GetByID(ctx, id)
	u.ia.observe(fieldmap.TableUsers, "get", err)
	return rec, err
}

func (u instrumentedUsers) Create(ctx context.Context, rec *model.User) error {
	err := u.r.Create(ctx, rec)
	u.ia.observe(fieldmap.TableUsers, "create", err)
	return err
}

func (u instrumentedUsers) Update(ctx context.Context, id string, fields map[string]any) error {
	err := u.r.Update(ctx, id, fields)
	u.ia.observe(fieldmap.TableUsers, "update", err)
	return err
}

func (u instrumentedUsers) Delete(ctx context.Context, id string) error {
	err := u.r.Delete(ctx, id)
	u.ia.observe(fieldmap.TableUsers, "delete", err)
	return err
}

type instrumentedPosts struct {
	r  PostRepository
	ia *instrumentedAdapter
}

func (p instrumentedPosts) GetByID(ctx context.Context, id string) (*model.Post, error) {
	rec, err := p.r.GetByID(ctx, id)
	p.ia.observe(fieldmap.TablePosts, "get", err)
	return rec, err
}

func (p instrumentedPosts) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	recs, err := p.r.ListByUser(ctx, userID)
	p.ia.observe(fieldmap.TablePosts, "list", err)
	return recs, err
}

func (p instrumentedPosts) Create(ctx context.Context, rec *model.Post) error {
	err := p.r.Create(ctx, rec)
	p.ia.observe(fieldmap.TablePosts, "create", err)
	return err
}

func (p instrumentedPosts) Update(ctx context.Context, id string, fields map[string]any) error {
	err := p.r.Update(ctx, id, fields)
	p.ia.observe(fieldmap.TablePosts, "update", err)
	return err
}

func (p instrumentedPosts) Delete(ctx context.Context, id string) error {
	err := p.r.Delete(ctx, id)
	p.ia.observe(fieldmap.TablePosts, "delete", err)
	return err
}

type instrumentedAccounts struct {
	r  SocialAccountRepository
	ia *instrumentedAdapter
}

func (a instrumentedAccounts) GetByID(ctx context.Context, id string) (*model.SocialAccount, error) {
	rec, err := a.r.GetByID(ctx, id)
	a.ia.observe(fieldmap.TableAccounts, "get", err)
	return rec, err
}

func (a instrumentedAccounts) ListByUser(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	recs, err := a.r.ListByUser(ctx, userID)
	a.ia.observe(fieldmap.TableAccounts, "list", err)
	return recs, err
}

func (a instrumentedAccounts) Create(ctx context.Context, rec *model.SocialAccount) error {
	err := a.r.Create(ctx, rec)
	a.ia.observe(fieldmap.TableAccounts, "create", err)
	return err
}

func (a instrumentedAccounts) Update(ctx context.Context, id string, fields map[string]any) error {
	err := a.r.Update(ctx, id, fields)
	a.ia.observe(fieldmap.TableAccounts, "update", err)
	return err
}

func (a instrumentedAccounts) Delete(ctx context.Context, id string) error {
	err := a.r.Delete(ctx, id)
	a.ia.observe(fieldmap.TableAccounts, "delete", err)
	return err
}

type instrumentedPrefs struct {
	r  PreferenceRepository
	ia *instrumentedAdapter
}

func (p instrumentedPrefs) GetByUser(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	rec, err := p.r.GetByUser(ctx, userID)
	p.ia.observe(fieldmap.TablePreferences, "get", err)
	return rec, err
}

func (p instrumentedPrefs) Create(ctx context.Context, rec *model.NotificationPreference) error {
	err := p.r.Create(ctx, rec)
	p.ia.observe(fieldmap.TablePreferences, "create", err)
	return err
}

func (p instrumentedPrefs) Update(ctx context.Context, userID string, fields map[string]any) error {
	err := p.r.Update(ctx, userID, fields)
	p.ia.observe(fieldmap.TablePreferences, "update", err)
	return err
}

func (p instrumentedPrefs) Delete(ctx context.Context, userID string) error {
	err := p.r.Delete(ctx, userID)
	p.ia.observe(fieldmap.TablePreferences, "delete", err)
	return err
}

type instrumentedReplicator struct {
	r  Replicator
	ia *instrumentedAdapter
}

func (r instrumentedReplicator) ReplicateCreate(ctx context.Context, table, id string, fields map[string]any) error {
	err := r.r.ReplicateCreate(ctx, table, id, fields)
	r.ia.observe(table, "replicate_create", err)
	return err
}

func (r instrumentedReplicator) ReplicateUpdate(ctx context.Context, table, id string, fields map[string]any) error {
	err := r.r.ReplicateUpdate(ctx, table, id, fields)
	r.ia.observe(table, "replicate_update", err)
	return err
}

func (r instrumentedReplicator) ReplicateDelete(ctx context.Context, table, id string) error {
	err := r.r.ReplicateDelete(ctx, table, id)
	r.ia.observe(table, "replicate_delete", err)
	return err
}
