// Package sqlite implements the storage adapter over an embedded
// single-file SQLite database.
//
// The schema uses camelCase column names. It predates the PostgreSQL
// backend and is kept byte-compatible with databases created by earlier
// releases, so every cross-backend payload goes through the fieldmap
// translation before touching a column here.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/portagedev/portage/pkg/fieldmap"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	passwordHash TEXT NOT NULL DEFAULT '',
	createdAt TIMESTAMP NOT NULL,
	updatedAt TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	userId TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content TEXT NOT NULL DEFAULT '',
	platforms TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'draft',
	scheduledFor TIMESTAMP,
	publishedAt TIMESTAMP,
	createdAt TIMESTAMP NOT NULL,
	updatedAt TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS social_accounts (
	id TEXT PRIMARY KEY,
	userId TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	platform TEXT NOT NULL,
	accountName TEXT NOT NULL DEFAULT '',
	accessToken TEXT NOT NULL DEFAULT '',
	refreshToken TEXT NOT NULL DEFAULT '',
	tokenExpiresAt TIMESTAMP,
	createdAt TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_preferences (
	id TEXT PRIMARY KEY,
	userId TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	emailEnabled INTEGER NOT NULL DEFAULT 1,
	slackEnabled INTEGER NOT NULL DEFAULT 0,
	slackWebhookUrl TEXT NOT NULL DEFAULT '',
	notifyOnPublish INTEGER NOT NULL DEFAULT 1,
	notifyOnFailure INTEGER NOT NULL DEFAULT 1,
	digestFrequency TEXT NOT NULL DEFAULT 'daily',
	updatedAt TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_userId ON posts(userId);
CREATE INDEX IF NOT EXISTS idx_social_accounts_userId ON social_accounts(userId);
`

// columns each table accepts, in the camelCase convention. Updates and
// replicated writes are restricted to this set.
var tableColumns = map[string]map[string]bool{
	fieldmap.TableUsers: {
		"id": true, "username": true, "email": true, "passwordHash": true,
		"createdAt": true, "updatedAt": true,
	},
	fieldmap.TablePosts: {
		"id": true, "userId": true, "content": true, "platforms": true,
		"status": true, "scheduledFor": true, "publishedAt": true,
		"createdAt": true, "updatedAt": true,
	},
	fieldmap.TableAccounts: {
		"id": true, "userId": true, "platform": true, "accountName": true,
		"accessToken": true, "refreshToken": true, "tokenExpiresAt": true,
		"createdAt": true,
	},
	fieldmap.TablePreferences: {
		"id": true, "userId": true, "emailEnabled": true, "slackEnabled": true,
		"slackWebhookUrl": true, "notifyOnPublish": true, "notifyOnFailure": true,
		"digestFrequency": true, "updatedAt": true,
	},
}

// Adapter is the embedded-file storage backend.
type Adapter struct {
	cfg storage.Config

	mu          sync.Mutex
	db          *sql.DB
	initialized bool
}

// New creates an uninitialized SQLite adapter.
func New(cfg storage.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Initialize opens the database file and applies the schema. Safe to call
// more than once; subsequent calls are no-ops.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	if a.cfg.SQLitePath == "" {
		return storage.NewConnectivityError(model.BackendSQLite, fmt.Errorf("no database path configured"))
	}

	db, err := sql.Open("sqlite3", a.cfg.SQLitePath+"?_foreign_keys=on")
	if err != nil {
		return storage.NewConnectivityError(model.BackendSQLite, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return storage.NewConnectivityError(model.BackendSQLite, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return storage.NewConnectivityError(model.BackendSQLite, fmt.Errorf("apply schema: %w", err))
	}

	a.db = db
	a.initialized = true
	return nil
}

// Close closes the database file.
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
func (a *Adapter) Kind() model.BackendKind { return model.BackendSQLite }

// HealthCheck pings the database.
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

// encodePlatforms stores the platform list as a JSON array column.
func encodePlatforms(platforms []string) string {
	if platforms == nil {
		platforms = []string{}
	}
	b, _ := json.Marshal(platforms)
	return string(b)
}

func decodePlatforms(raw string) []string {
	var out []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

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
		`SELECT id, username, email, passwordHash, createdAt, updatedAt FROM users WHERE id = ?`, id,
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
		`INSERT INTO users (id, username, email, passwordHash, createdAt, updatedAt) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.a.update(ctx, fieldmap.TableUsers, id, fields, true)
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
		`SELECT id, userId, content, platforms, status, scheduledFor, publishedAt, createdAt, updatedAt
		 FROM posts WHERE id = ?`, id))
}

func (r *postRepo) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, userId, content, platforms, status, scheduledFor, publishedAt, createdAt, updatedAt
		 FROM posts WHERE userId = ? ORDER BY createdAt`, userID)
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
	var platforms string
	var scheduledFor, publishedAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.Content, &platforms, &p.Status,
		&scheduledFor, &publishedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.Platforms = decodePlatforms(platforms)
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
		`INSERT INTO posts (id, userId, content, platforms, status, scheduledFor, publishedAt, createdAt, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Content, encodePlatforms(p.Platforms), p.Status,
		nullTime(p.ScheduledFor), nullTime(p.PublishedAt), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (r *postRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.a.update(ctx, fieldmap.TablePosts, id, fields, true)
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
		`SELECT id, userId, platform, accountName, accessToken, refreshToken, tokenExpiresAt, createdAt
		 FROM social_accounts WHERE id = ?`, id))
}

func (r *accountRepo) ListByUser(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	db, err := r.a.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, userId, platform, accountName, accessToken, refreshToken, tokenExpiresAt, createdAt
		 FROM social_accounts WHERE userId = ? ORDER BY createdAt`, userID)
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
		`INSERT INTO social_accounts (id, userId, platform, accountName, accessToken, refreshToken, tokenExpiresAt, createdAt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.UserID, acct.Platform, acct.AccountName,
		acct.AccessToken, acct.RefreshToken, nullTime(acct.TokenExpiresAt), acct.CreatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create social account: %w", err)
	}
	return nil
}

func (r *accountRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.a.update(ctx, fieldmap.TableAccounts, id, fields, false)
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
		`SELECT id, userId, emailEnabled, slackEnabled, slackWebhookUrl, notifyOnPublish, notifyOnFailure, digestFrequency, updatedAt
		 FROM notification_preferences WHERE userId = ?`, userID,
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
		`INSERT INTO notification_preferences (id, userId, emailEnabled, slackEnabled, slackWebhookUrl, notifyOnPublish, notifyOnFailure, digestFrequency, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.EmailEnabled, p.SlackEnabled, p.SlackWebhookURL,
		p.NotifyOnPublish, p.NotifyOnFailure, p.DigestFrequency, p.UpdatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create preferences: %w", err)
	}
	return nil
}

func (r *prefRepo) Update(ctx context.Context, userID string, fields map[string]any) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	set, args, err := buildSet(fieldmap.TablePreferences, fields, true)
	if err != nil {
		return err
	}
	args = append(args, userID)
	res, err := db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE notification_preferences SET %s WHERE userId = ?`, set), args...)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return checkAffected(res)
}

func (r *prefRepo) Delete(ctx context.Context, userID string) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM notification_preferences WHERE userId = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return checkAffected(res)
}

// update applies a partial update of canonical snake_case fields.
func (a *Adapter) update(ctx context.Context, table, id string, fields map[string]any, touch bool) error {
	db, err := a.conn()
	if err != nil {
		return err
	}
	set, args, err := buildSet(table, fields, touch)
	if err != nil {
		return err
	}
	args = append(args, id)
	res, err := db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, set), args...)
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
	res, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return checkAffected(res)
}

// buildSet translates canonical snake_case field names to this schema's
// camelCase columns and builds the SET clause. Unknown columns are
// rejected rather than interpolated.
func buildSet(table string, fields map[string]any, touch bool) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("no fields to update")
	}
	cols := tableColumns[table]
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	var args []any
	for _, k := range keys {
		col := fieldmap.ColumnFor(table, k)
		if !cols[col] || col == "id" {
			return "", nil, fmt.Errorf("unknown column %q for table %s", k, table)
		}
		parts = append(parts, col+" = ?")
		args = append(args, normalizeValue(col, fields[k]))
	}
	if touch {
		if _, set := fields["updated_at"]; !set && cols["updatedAt"] {
			parts = append(parts, "updatedAt = ?")
			args = append(args, time.Now().UTC())
		}
	}
	return strings.Join(parts, ", "), args, nil
}

// normalizeValue converts values that need driver-friendly encodings.
func normalizeValue(col string, v any) any {
	switch val := v.(type) {
	case []string:
		return encodePlatforms(val)
	case []any:
		strs := make([]string, 0, len(val))
		for _, item := range val {
			strs = append(strs, fmt.Sprint(item))
		}
		return encodePlatforms(strs)
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

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
