package session_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
)

func newPostgresStore(t *testing.T) (*session.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return session.NewPostgresStore(db, 10, nil), mock
}

func TestPostgresStoreCreateSession(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions (id, user_id, created_at, updated_at, message_count)`)).
		WithArgs(sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s, err := store.CreateSession(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendMessage(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages`)).
		WithArgs(sqlmock.AnyArg(), "s1", "user", "hello", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET updated_at = $2, message_count = message_count + 1`)).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM messages WHERE session_id = $1 AND seq NOT IN`)).
		WithArgs("s1", 20).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.AppendMessage(context.Background(), "s1", chat.RoleUser, "hello", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendUnknownSession(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := store.AppendMessage(context.Background(), "missing", chat.RoleUser, "hello", nil)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecentMessages(t *testing.T) {
	store, mock := newPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, role, content, metadata, created_at FROM (`)).
		WithArgs("s1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "content", "metadata", "created_at"}).
			AddRow("m1", "user", "Compare term and whole life", nil, now).
			AddRow("m2", "assistant", "Term is cheaper.", []byte(`{"reasoning":"Intent: POLICY_TYPES"}`), now))

	messages, err := store.RecentMessages(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, "Intent: POLICY_TYPES", messages[1].Metadata["reasoning"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetSessionNotFound(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, created_at, updated_at, message_count FROM sessions WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at", "message_count"}))

	_, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPostgresStoreDeleteSession(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteSession(context.Background(), "s1"))
	assert.ErrorIs(t, store.DeleteSession(context.Background(), "s1"), session.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListSessions(t *testing.T) {
	store, mock := newPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, created_at, updated_at, message_count FROM sessions ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at", "message_count"}).
			AddRow("s2", nil, now, now, 4).
			AddRow("s1", "u1", now, now, 0))

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 4, sessions[0].MessageCount)
	assert.Equal(t, "u1", sessions[1].UserID)
}
