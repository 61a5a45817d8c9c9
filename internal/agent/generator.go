package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/persona"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
	"github.com/zhouzirui/lifeline/backend/internal/service/tools"
)

const (
	// GenerationFailed is returned whenever the answer cannot be produced.
	GenerationFailed = "I apologize, but I encountered an error processing your question. Please try rephrasing or contact support."

	noConversation = "No previous conversation"
)

// ResponseGenerator writes the final answer from context, tool output and history.
type ResponseGenerator struct {
	chain        textChain
	system       string
	history      HistorySource
	historyLimit int
	log          *zap.Logger
}

func NewResponseGenerator(ctx context.Context, gw llm.Gateway, p *persona.Persona, history HistorySource, historyLimit int, log *zap.Logger) (*ResponseGenerator, error) {
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage(answerGenerationPrompt),
	)
	chain, err := newTextChain(ctx, "answer generator", tpl, gw)
	if err != nil {
		return nil, err
	}
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &ResponseGenerator{
		chain:        chain,
		system:       BuildSystemPrompt(p),
		history:      history,
		historyLimit: historyLimit,
		log:          logger.OrNop(log).Named("agent.generator"),
	}, nil
}

// Generate always returns text. Failures produce GenerationFailed.
func (g *ResponseGenerator) Generate(ctx context.Context, question, retrieved string, results ToolResults, sessionID string) string {
	answer, err := g.chain.Invoke(ctx, map[string]any{
		"system":               g.system,
		"conversation_history": g.conversation(ctx, sessionID),
		"context":              retrieved + "\n" + FormatToolResults(results),
		"question":             question,
	})
	if err != nil {
		g.log.Error("answer generation failed", zap.Error(err))
		return GenerationFailed
	}
	return answer
}

func (g *ResponseGenerator) conversation(ctx context.Context, sessionID string) string {
	if sessionID == "" || g.history == nil {
		return noConversation
	}
	msgs, err := g.history.RecentMessages(ctx, sessionID, g.historyLimit)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			g.log.Warn("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
		}
		return noConversation
	}
	if len(msgs) == 0 {
		return noConversation
	}
	return session.FormatRecent(msgs)
}

// FormatToolResults renders populated tool outputs under upper-cased headers.
// An empty result set renders as "".
func FormatToolResults(results ToolResults) string {
	if results.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nTool Results:\n")
	results.each(func(name string, v any) {
		b.WriteString("\n" + strings.ToUpper(name) + ":\n")
		b.WriteString(tools.Render(v))
		b.WriteString("\n")
	})
	return b.String()
}
