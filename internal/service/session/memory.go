package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
)

// MemoryStore keeps sessions in process memory. Suitable for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]chat.Session
	messages   map[string][]chat.Message
	maxHistory int
	log        *zap.Logger
}

// NewMemoryStore bootstraps the in-memory store. Each transcript keeps the
// latest maxHistory*2 messages.
func NewMemoryStore(maxHistory int, log *zap.Logger) *MemoryStore {
	if maxHistory < 1 {
		maxHistory = 10
	}
	return &MemoryStore{
		sessions:   make(map[string]chat.Session),
		messages:   make(map[string][]chat.Message),
		maxHistory: maxHistory,
		log:        logger.OrNop(log).Named("session.memory"),
	}
}

// CreateSession provisions a session, optionally bound to a user.
func (s *MemoryStore) CreateSession(_ context.Context, userID string) (chat.Session, error) {
	now := time.Now().UTC()
	session := chat.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	s.log.Info("created session", zap.String("session_id", session.ID))
	return session, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemoryStore) Exists(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

// AppendMessage appends a message to the session history.
func (s *MemoryStore) AppendMessage(_ context.Context, sessionID string, role chat.Role, content string, metadata map[string]any) error {
	if sessionID == "" {
		return ErrSessionIDEmpty
	}
	if !role.Valid() {
		return ErrRoleInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	now := time.Now().UTC()
	message := chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
	}

	history := append(s.messages[sessionID], message)
	if limit := s.maxHistory * 2; len(history) > limit {
		history = append([]chat.Message(nil), history[len(history)-limit:]...)
	}
	s.messages[sessionID] = history

	session.UpdatedAt = now
	session.MessageCount++
	s.sessions[sessionID] = session
	return nil
}

// RecentMessages returns a copy of the latest messages for the session.
func (s *MemoryStore) RecentMessages(_ context.Context, sessionID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	selected := tail(messages, limit)
	copied := make([]chat.Message, len(selected))
	copy(copied, selected)
	return copied, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	s.log.Info("cleared session", zap.String("session_id", sessionID))
	return nil
}

// ListSessions returns all sessions, newest first.
func (s *MemoryStore) ListSessions(_ context.Context) ([]chat.Session, error) {
	s.mu.RLock()
	sessions := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
