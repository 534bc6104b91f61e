package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagedev/portage/pkg/fieldmap"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/storage"
)

func mockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Adapter{db: db, initialized: true}, mock
}

func TestKind(t *testing.T) {
	a, _ := mockAdapter(t)
	assert.Equal(t, model.BackendPostgres, a.Kind())
}

func TestOperationsBeforeInitialize(t *testing.T) {
	a := New(storage.DefaultConfig())
	_, err := a.Users().GetByID(context.Background(), "u1")
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
}

func TestGetUserByID(t *testing.T) {
	a, mock := mockAdapter(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at", "updated_at"}).
		AddRow("u1", "alice", "alice@example.com", "hash", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = $1`)).
		WithArgs("u1").
		WillReturnRows(rows)

	u, err := a.Users().GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByIDNotFound(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectQuery(`SELECT id, username, email, password_hash`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := a.Users().GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestCreateUserConflict(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})

	u := &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}
	err := a.Users().Create(context.Background(), u)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserAssignsID(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &model.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, a.Users().Create(context.Background(), u))
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestUpdateUserBuildsSortedSet(t *testing.T) {
	a, mock := mockAdapter(t)

	// Fields sort alphabetically; updated_at is appended automatically.
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE users SET email = $1, username = $2, updated_at = $3 WHERE id = $4`)).
		WithArgs("new@example.com", "bob", sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.Users().Update(context.Background(), "u1", map[string]any{
		"username": "bob",
		"email":    "new@example.com",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRejectsUnknownColumn(t *testing.T) {
	a, _ := mockAdapter(t)
	err := a.Users().Update(context.Background(), "u1", map[string]any{"role": "admin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")
}

func TestUpdateMissingRecord(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectExec(`UPDATE users SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.Users().Update(context.Background(), "ghost", map[string]any{"email": "x@example.com"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListPostsByUser(t *testing.T) {
	a, mock := mockAdapter(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "content", "platforms", "status",
		"scheduled_for", "published_at", "created_at", "updated_at",
	}).
		AddRow("p1", "u1", "first", "{mastodon}", "published", nil, now, now, now).
		AddRow("p2", "u1", "second", "{}", "draft", nil, nil, now, now)
	mock.ExpectQuery(`SELECT id, user_id, content, platforms`).
		WithArgs("u1").
		WillReturnRows(rows)

	posts, err := a.Posts().ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, []string{"mastodon"}, posts[0].Platforms)
	assert.NotNil(t, posts[0].PublishedAt)
	assert.Nil(t, posts[1].PublishedAt)
}

func TestPreferencesUpdateKeyedByUser(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE notification_preferences SET digest_frequency = $1, updated_at = $2 WHERE user_id = $3`)).
		WithArgs("weekly", sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.Preferences().Update(context.Background(), "u1", map[string]any{
		"digest_frequency": "weekly",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNotFound(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectExec(`DELETE FROM posts WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.Posts().Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReplicateCreateUpserts(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO posts (content, id, user_id) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, user_id = EXCLUDED.user_id`)).
		WithArgs("hello", "p1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.Replicator().ReplicateCreate(context.Background(), fieldmap.TablePosts, "p1", map[string]any{
		"user_id": "u1",
		"content": "hello",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplicateCreateTranslatesLegacyFieldNames(t *testing.T) {
	a, mock := mockAdapter(t)

	// camelCase keys from a legacy producer normalize to snake_case
	// before hitting this schema.
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO posts (content, id, user_id) VALUES ($1, $2, $3)`)).
		WithArgs("hello", "p1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.Replicator().ReplicateCreate(context.Background(), fieldmap.TablePosts, "p1", map[string]any{
		"userId":  "u1",
		"content": "hello",
	})
	require.NoError(t, err)
}

func TestReplicateUpdateSkipsUnknownColumns(t *testing.T) {
	a, mock := mockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE posts SET status = $1 WHERE id = $2`)).
		WithArgs("published", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.Replicator().ReplicateUpdate(context.Background(), fieldmap.TablePosts, "p1", map[string]any{
		"status":   "published",
		"internal": "dropped",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplicateUnsupportedTable(t *testing.T) {
	a, _ := mockAdapter(t)
	err := a.Replicator().ReplicateDelete(context.Background(), "sessions", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported table")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(nil))
}
