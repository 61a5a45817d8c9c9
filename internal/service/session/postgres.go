package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	user_id       TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS messages (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_session_seq_idx ON messages (session_id, seq);`

// PostgresStore persists sessions in two tables. Appends lock the session row
// so concurrent writers to one session are serialized.
type PostgresStore struct {
	db         *sql.DB
	maxHistory int
	log        *zap.Logger
}

// OpenPostgres opens a pooled connection using the pq driver.
func OpenPostgres(cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)
	return db, nil
}

func NewPostgresStore(db *sql.DB, maxHistory int, log *zap.Logger) *PostgresStore {
	if maxHistory < 1 {
		maxHistory = 10
	}
	return &PostgresStore{db: db, maxHistory: maxHistory, log: logger.OrNop(log).Named("session.postgres")}
}

// EnsureSchema creates the tables when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, userID string) (chat.Session, error) {
	now := time.Now().UTC()
	session := chat.Session{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, updated_at, message_count) VALUES ($1, $2, $3, $4, 0)`,
		session.ID, nullString(userID), now, now)
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("created session", zap.String("session_id", session.ID))
	return session, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var (
		session chat.Session
		userID  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at, message_count FROM sessions WHERE id = $1`, sessionID).
		Scan(&session.ID, &userID, &session.CreatedAt, &session.UpdatedAt, &session.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("get session: %w", err)
	}
	session.UserID = userID.String
	return session, nil
}

func (s *PostgresStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string, metadata map[string]any) error {
	if sessionID == "" {
		return ErrSessionIDEmpty
	}
	if !role.Valid() {
		return ErrRoleInvalid
	}

	var meta []byte
	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = encoded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), sessionID, string(role), content, meta, now); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = $2, message_count = message_count + 1 WHERE id = $1`,
		sessionID, now); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = $1 AND seq NOT IN (SELECT seq FROM messages WHERE session_id = $1 ORDER BY seq DESC LIMIT $2)`,
		sessionID, s.maxHistory*2); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	ok, err := s.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	// LIMIT NULL means no limit in postgres.
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, metadata, created_at FROM (
			SELECT seq, id, role, content, metadata, created_at FROM messages
			WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq ASC`, sessionID, lim)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var (
			msg  chat.Message
			role string
			meta []byte
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &meta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SessionID = sessionID
		msg.Role = chat.Role(role)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &msg.Metadata); err != nil {
				s.log.Warn("dropping undecodable metadata", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	s.log.Info("cleared session", zap.String("session_id", sessionID))
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]chat.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, updated_at, message_count FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []chat.Session
	for rows.Next() {
		var (
			session chat.Session
			userID  sql.NullString
		)
		if err := rows.Scan(&session.ID, &userID, &session.CreatedAt, &session.UpdatedAt, &session.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.UserID = userID.String
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
