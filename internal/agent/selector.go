package agent

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/analysis/toolneed"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
)

// ToolSelector asks the model whether the domain tools are needed and falls back
// to keyword matching when the model cannot be reached.
type ToolSelector struct {
	chain    textChain
	fallback func(question, intent string) toolneed.Decision
	log      *zap.Logger
}

func NewToolSelector(ctx context.Context, gw llm.Gateway, temperature float32, log *zap.Logger) (*ToolSelector, error) {
	tpl := prompt.FromMessages(schema.FString, schema.UserMessage(toolSelectionPrompt))
	chain, err := newTextChain(ctx, "tool selector", tpl, gw, llm.WithTemperature(temperature))
	if err != nil {
		return nil, err
	}
	return &ToolSelector{
		chain:    chain,
		fallback: toolneed.Analyze,
		log:      logger.OrNop(log).Named("agent.selector"),
	}, nil
}

// ShouldUseTools is true when the reply contains YES. Only a gateway failure
// triggers the keyword fallback.
func (s *ToolSelector) ShouldUseTools(ctx context.Context, question string, intent Category) bool {
	raw, err := s.chain.Invoke(ctx, map[string]any{
		"question": question,
		"intent":   string(intent),
	})
	if err != nil {
		decision := s.fallback(question, string(intent))
		s.log.Warn("tool selection failed, using keyword fallback",
			zap.Error(err),
			zap.Bool("use_tools", decision.Any()),
			zap.Strings("keywords", decision.Keywords))
		return decision.Any()
	}

	use := strings.Contains(strings.ToUpper(raw), "YES")
	s.log.Info("tool selection decided", zap.Bool("use_tools", use))
	return use
}
