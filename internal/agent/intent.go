package agent

import (
	"context"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
)

// IntentClassifier asks the model for one of the six categories.
type IntentClassifier struct {
	chain textChain
	log   *zap.Logger
}

func NewIntentClassifier(ctx context.Context, gw llm.Gateway, temperature float32, log *zap.Logger) (*IntentClassifier, error) {
	tpl := prompt.FromMessages(schema.FString, schema.UserMessage(intentClassifierPrompt))
	chain, err := newTextChain(ctx, "intent classifier", tpl, gw, llm.WithTemperature(temperature))
	if err != nil {
		return nil, err
	}
	return &IntentClassifier{chain: chain, log: logger.OrNop(log).Named("agent.intent")}, nil
}

// Classify never fails: gateway errors and unknown labels both yield General.
func (c *IntentClassifier) Classify(ctx context.Context, question string) Category {
	raw, err := c.chain.Invoke(ctx, map[string]any{"question": question})
	if err != nil {
		c.log.Warn("intent classification failed, using GENERAL", zap.Error(err))
		return General
	}

	intent := ParseCategory(raw)
	c.log.Info("classified intent", zap.String("intent", string(intent)))
	return intent
}
