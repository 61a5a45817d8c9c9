// Package conversation persists both sides of a chat turn around the agent.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
)

// ErrTurnFailed is returned when the agent reports an unsuccessful turn.
var ErrTurnFailed = errors.New("failed to process message")

// Assistant answers one message. *agent.Orchestrator satisfies it.
type Assistant interface {
	ProcessMessage(ctx context.Context, text, sessionID string, opts ...agent.TurnOption) agent.Result
}

// Reply is the outcome of a successful turn.
type Reply struct {
	SessionID string       `json:"session_id"`
	Message   string       `json:"message"`
	Sources   []string     `json:"sources"`
	Reasoning string       `json:"agent_reasoning"`
	Timestamp time.Time    `json:"timestamp"`
	Result    agent.Result `json:"-"`
}

type Service struct {
	store     session.Store
	assistant Assistant
	log       *zap.Logger
}

func New(store session.Store, assistant Assistant, log *zap.Logger) *Service {
	return &Service{store: store, assistant: assistant, log: logger.OrNop(log).Named("conversation")}
}

func (s *Service) Store() session.Store { return s.store }

// Ask records the user message, runs the agent and records the answer with
// its sources and reasoning. Unknown sessions yield session.ErrSessionNotFound.
func (s *Service) Ask(ctx context.Context, sessionID, text string, opts ...agent.TurnOption) (Reply, error) {
	ok, err := s.store.Exists(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{}, session.ErrSessionNotFound
	}

	if err := s.store.AppendMessage(ctx, sessionID, chat.RoleUser, text, nil); err != nil {
		return Reply{}, fmt.Errorf("save user message: %w", err)
	}

	res := s.assistant.ProcessMessage(ctx, text, sessionID, opts...)
	if !res.Success {
		s.log.Error("turn failed", zap.String("session_id", sessionID), zap.String("reasoning", res.Reasoning))
		return Reply{SessionID: sessionID, Result: res}, ErrTurnFailed
	}

	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	meta := map[string]any{"sources": sources, "reasoning": res.Reasoning}
	if err := s.store.AppendMessage(ctx, sessionID, chat.RoleAssistant, res.Answer, meta); err != nil {
		return Reply{}, fmt.Errorf("save assistant message: %w", err)
	}

	return Reply{
		SessionID: sessionID,
		Message:   res.Answer,
		Sources:   sources,
		Reasoning: res.Reasoning,
		Timestamp: time.Now().UTC(),
		Result:    res,
	}, nil
}
