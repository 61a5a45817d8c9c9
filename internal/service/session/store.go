package session

import (
	"context"
	"errors"
	"strings"

	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRoleInvalid     = errors.New("message role must be user, assistant or system")
	ErrSessionIDEmpty  = errors.New("session id is required")
)

// NoHistory is returned by FormatRecent for an empty transcript.
const NoHistory = "No previous conversation history."

// Store persists sessions and their ordered transcripts. Implementations must
// keep appends to the same session in arrival order.
type Store interface {
	CreateSession(ctx context.Context, userID string) (chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string, metadata map[string]any) error
	// RecentMessages returns at most limit messages, oldest first. limit <= 0 returns the full transcript.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]chat.Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// FormatRecent renders messages as "Role: content" lines.
func FormatRecent(messages []chat.Message) string {
	if len(messages) == 0 {
		return NoHistory
	}

	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, msg.Role.Label()+": "+msg.Content)
	}
	return strings.Join(parts, "\n")
}

func tail(messages []chat.Message, limit int) []chat.Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}
