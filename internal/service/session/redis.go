package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
)

// RedisStore keeps each session as a hash plus a capped list of JSON messages.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxHistory int
	log        *zap.Logger
}

// NewRedisClient opens a pooled client for the configured server.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})
}

func NewRedisStore(client *redis.Client, prefix string, maxHistory int, log *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "lifeline"
	}
	if maxHistory < 1 {
		maxHistory = 10
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxHistory: maxHistory,
		log:        logger.OrNop(log).Named("session.redis"),
	}
}

func (s *RedisStore) sessionKey(id string) string  { return s.prefix + ":session:" + id }
func (s *RedisStore) messagesKey(id string) string { return s.prefix + ":messages:" + id }
func (s *RedisStore) indexKey() string             { return s.prefix + ":sessions" }

func (s *RedisStore) CreateSession(ctx context.Context, userID string) (chat.Session, error) {
	now := time.Now().UTC()
	session := chat.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.sessionKey(session.ID), map[string]any{
			"user_id":       userID,
			"created_at":    now.Format(time.RFC3339Nano),
			"updated_at":    now.Format(time.RFC3339Nano),
			"message_count": 0,
		})
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: session.ID})
		return nil
	})
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("created session", zap.String("session_id", session.ID))
	return session, nil
}

func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return chat.Session{}, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return chat.Session{}, ErrSessionNotFound
	}
	return decodeSession(sessionID, fields)
}

func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return n > 0, nil
}

// maxAppendAttempts bounds retries when a watched session changes mid-append.
const maxAppendAttempts = 8

// AppendMessage pushes and trims inside one MULTI so per-session order holds.
// The session hash is WATCHed so a concurrent delete cannot be resurrected as
// a partial hash.
func (s *RedisStore) AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string, metadata map[string]any) error {
	if sessionID == "" {
		return ErrSessionIDEmpty
	}
	if !role.Valid() {
		return ErrRoleInvalid
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	keep := int64(s.maxHistory * 2)
	sessionKey, messagesKey := s.sessionKey(sessionID), s.messagesKey(sessionID)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, sessionKey).Result()
		if err != nil {
			return fmt.Errorf("session exists: %w", err)
		}
		if n == 0 {
			return ErrSessionNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, messagesKey, payload)
			pipe.LTrim(ctx, messagesKey, -keep, -1)
			pipe.HSet(ctx, sessionKey, "updated_at", now.Format(time.RFC3339Nano))
			pipe.HIncrBy(ctx, sessionKey, "message_count", 1)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, sessionKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionNotFound):
		return ErrSessionNotFound
	default:
		return fmt.Errorf("append message: %w", err)
	}
}

func (s *RedisStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	ok, err := s.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, s.messagesKey(sessionID), start, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	messages := make([]chat.Message, 0, len(raw))
	for _, item := range raw {
		var msg chat.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.log.Warn("skipping undecodable message", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, s.sessionKey(sessionID))
		pipe.Del(ctx, s.messagesKey(sessionID))
		pipe.ZRem(ctx, s.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if deleted.Val() == 0 {
		return ErrSessionNotFound
	}
	s.log.Info("cleared session", zap.String("session_id", sessionID))
	return nil
}

func (s *RedisStore) ListSessions(ctx context.Context) ([]chat.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]chat.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeSession(id string, fields map[string]string) (chat.Session, error) {
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return chat.Session{}, fmt.Errorf("decode created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		updated = created
	}
	count, _ := strconv.Atoi(fields["message_count"])

	return chat.Session{
		ID:           id,
		UserID:       fields["user_id"],
		CreatedAt:    created,
		UpdatedAt:    updated,
		MessageCount: count,
	}, nil
}
