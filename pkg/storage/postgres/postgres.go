// Package postgres implements the storage adapter over a networked
// PostgreSQL server. Columns use the canonical snake_case convention.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/portagedev/portage/pkg/fieldmap"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content TEXT NOT NULL DEFAULT '',
	platforms TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'draft',
	scheduled_for TIMESTAMPTZ,
	published_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS social_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	platform TEXT NOT NULL,
	account_name TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_preferences (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	slack_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	slack_webhook_url TEXT NOT NULL DEFAULT '',
	notify_on_publish BOOLEAN NOT NULL DEFAULT TRUE,
	notify_on_failure BOOLEAN NOT NULL DEFAULT TRUE,
	digest_frequency TEXT NOT NULL DEFAULT 'daily',
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts(user_id);
CREATE INDEX IF NOT EXISTS idx_social_accounts_user_id ON social_accounts(user_id);
`

var tableColumns = map[string]map[string]bool{
	fieldmap.TableUsers: {
		"id": true, "username": true, "email": true, "password_hash": true,
		"created_at": true, "updated_at": true,
	},
	fieldmap.TablePosts: {
		"id": true, "user_id": true, "content": true, "platforms": true,
		"status": true, "scheduled_for": true, "published_at": true,
		"created_at": true, "updated_at": true,
	},
	fieldmap.TableAccounts: {
		"id": true, "user_id": true, "platform": true, "account_name": true,
		"access_token": true, "refresh_token": true, "token_expires_at": true,
		"created_at": true,
	},
	fieldmap.TablePreferences: {
		"id": true, "user_id": true, "email_enabled": true, "slack_enabled": true,
		"slack_webhook_url": true, "notify_on_publish": true, "notify_on_failure": true,
		"digest_frequency": true, "updated_at": true,
	},
}

// Adapter is the networked PostgreSQL storage backend.
type Adapter struct {
	cfg storage.Config

	mu          sync.Mutex
	db          *sql.DB
	initialized bool
}

// New creates an uninitialized Postgres adapter.
func New(cfg storage.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Initialize opens the connection pool, pings the server and applies the
// schema. Idempotent: subsequent calls return nil without touching the
// pool.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	if a.cfg.PostgresURL == "" {
		return storage.NewConnectivityError(model.BackendPostgres, fmt.Errorf("no connection URL configured"))
	}

	db, err := sql.Open("postgres", a.cfg.PostgresURL)
	if err != nil {
		return storage.NewConnectivityError(model.BackendPostgres, err)
	}

	db.SetMaxOpenConns(a.cfg.PostgresMaxConns)
	db.SetMaxIdleConns(a.cfg.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := a.cfg.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return storage.NewConnectivityError(model.BackendPostgres, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return storage.NewConnectivityError(model.BackendPostgres, fmt.Errorf("apply schema: %w", err))
	}

	a.db = db
	a.initialized = true
	return nil
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.initialized = false
	return err
}

// Kind implements storage.Adapter.
func (a *Adapter) Kind() model.BackendKind { return model.BackendPostgres }

// HealthCheck pings the server.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	db, err := a.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (a *Adapter) conn() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil, storage.ErrNotInitialized
	}
	return a.db, nil
}

func (a *Adapter) Users() storage.UserRepository                   { return &userRepo{a} }
func (a *Adapter) Posts() storage.PostRepository                   { return &postRepo{a} }
func (a *Adapter) SocialAccounts() storage.SocialAccountRepository { return &accountRepo{a} }
func (a *Adapter) Preferences() storage.PreferenceRepository       { return &prefRepo{a} }
func (a *Adapter) Replicator() storage.Replicator                  { return &replicator{a} }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

type userRepo struct{ a *Adapter }

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	var u model.User
	err = db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.a.update(ctx, fieldmap.TableUsers, "id", id, fields, true)
}

func (r *userRepo) Delete(ctx context.Context, id string) error {
	return r.a.delete(ctx, fieldmap.TableUsers, id)
}

type postRepo struct{ a *Adapter }

func (r *postRepo) GetByID(ctx context.Context, id string) (*model.Post, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	return scanPost(db.QueryRowContext(ctx,
		`SELECT id, user_id, content, platforms, status, scheduled_for, published_at, created_at, updated_at
		 FROM posts WHERE id = $1`, id))
}

func (r *postRepo) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, content, platforms, status, scheduled_for, published_at, created_at, updated_at
		 FROM posts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*model.Post, error) {
	var p model.Post
	var scheduledFor, publishedAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.Content, pq.Array(&p.Platforms), &p.Status,
		&scheduledFor, &publishedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	if p.Platforms == nil {
		p.Platforms = []string{}
	}
	p.ScheduledFor = timePtr(scheduledFor)
	p.PublishedAt = timePtr(publishedAt)
	return &p, nil
}

func (r *postRepo) Create(ctx context.Context, p *model.Post) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	if p.UserID == "" {
		return fmt.Errorf("post requires a user id")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = "draft"
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO posts (id, user_id, content, platforms, status, scheduled_for, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.Content, pq.Array(p.Platforms), p.Status,
		nullTime(p.ScheduledFor), nullTime(p.PublishedAt), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (r *postRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.a.update(ctx, fieldmap.TablePosts, "id", id, fields, true)
}

func (r *postRepo) Delete(ctx context.Context, id string) error {
	return r.a.delete(ctx, fieldmap.TablePosts, id)
}

type accountRepo struct{ a *Adapter }

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.SocialAccount, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	return scanAccount(db.QueryRowContext(ctx,
		`SELECT id, user_id, platform, account_name, access_token, refresh_token, token_expires_at, created_at
		 FROM social_accounts WHERE id = $1`, id))
}

func (r *accountRepo) ListByUser(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, platform, account_name, access_token, refresh_token, token_expires_at, created_at
		 FROM social_accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list social accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.SocialAccount
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (*model.SocialAccount, error) {
	var acct model.SocialAccount
	var expires sql.NullTime
	err := row.Scan(&acct.ID, &acct.UserID, &acct.Platform, &acct.AccountName,
		&acct.AccessToken, &acct.RefreshToken, &expires, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan social account: %w", err)
	}
	acct.TokenExpiresAt = timePtr(expires)
	return &acct, nil
}

func (r *accountRepo) Create(ctx context.Context, acct *model.SocialAccount) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	if acct.UserID == "" {
		return fmt.Errorf("social account requires a user id")
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO social_accounts (id, user_id, platform, account_name, access_token, refresh_token, token_expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		acct.ID, acct.UserID, acct.Platform, acct.AccountName,
		acct.AccessToken, acct.RefreshToken, nullTime(acct.TokenExpiresAt), acct.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create social account: %w", err)
	}
	return nil
}

func (r *accountRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.a.update(ctx, fieldmap.TableAccounts, "id", id, fields, false)
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	return r.a.delete(ctx, fieldmap.TableAccounts, id)
}

type prefRepo struct{ a *Adapter }

func (r *prefRepo) GetByUser(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	var p model.NotificationPreference
	err = db.QueryRowContext(ctx,
		`SELECT id, user_id, email_enabled, slack_enabled, slack_webhook_url, notify_on_publish, notify_on_failure, digest_frequency, updated_at
		 FROM notification_preferences WHERE user_id = $1`, userID,
	).Scan(&p.ID, &p.UserID, &p.EmailEnabled, &p.SlackEnabled, &p.SlackWebhookURL,
		&p.NotifyOnPublish, &p.NotifyOnFailure, &p.DigestFrequency, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

func (r *prefRepo) Create(ctx context.Context, p *model.NotificationPreference) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	if p.UserID == "" {
		return fmt.Errorf("preferences require a user id")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = db.ExecContext(ctx,
		`INSERT INTO notification_preferences (id, user_id, email_enabled, slack_enabled, slack_webhook_url, notify_on_publish, notify_on_failure, digest_frequency, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.EmailEnabled, p.SlackEnabled, p.SlackWebhookURL,
		p.NotifyOnPublish, p.NotifyOnFailure, p.DigestFrequency, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create preferences: %w", err)
	}
	return nil
}

func (r *prefRepo) Update(ctx context.Context, userID string, fields map[string]any) error {
	return r.a.update(ctx, fieldmap.TablePreferences, "user_id", userID, fields, true)
}

func (r *prefRepo) Delete(ctx context.Context, userID string) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM notification_preferences WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return checkAffected(res)
}

// update applies a partial update of canonical snake_case fields.
func (a *Adapter) update(ctx context.Context, table, keyCol, key string, fields map[string]any, touch bool) error {
	db, err := a.conn()
	if err != nil {
		return err
	}
	cols := tableColumns[table]
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return fmt.Errorf("no fields to update")
	}
	sort.Strings(keys)

	var parts []string
	var args []any
	i := 1
	for _, k := range keys {
		if !cols[k] || k == "id" {
			return fmt.Errorf("unknown column %q for table %s", k, table)
		}
		parts = append(parts, fmt.Sprintf("%s = $%d", k, i))
		args = append(args, normalizeValue(fields[k]))
		i++
	}
	if touch {
		if _, set := fields["updated_at"]; !set && cols["updated_at"] {
			parts = append(parts, fmt.Sprintf("updated_at = $%d", i))
			args = append(args, time.Now().UTC())
			i++
		}
	}
	args = append(args, key)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d`, table, strings.Join(parts, ", "), keyCol, i)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return checkAffected(res)
}

func (a *Adapter) delete(ctx context.Context, table, id string) error {
	db, err := a.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return checkAffected(res)
}

// normalizeValue converts values that need driver-friendly encodings.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []string:
		return pq.Array(val)
	case []any:
		strs := make([]string, 0, len(val))
		for _, item := range val {
			strs = append(strs, fmt.Sprint(item))
		}
		return pq.Array(strs)
	case *time.Time:
		return nullTime(val)
	default:
		return v
	}
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
