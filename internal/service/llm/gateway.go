package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
)

// Gateway turns role-tagged messages into generated text.
type Gateway interface {
	Invoke(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error)
}

// GatewayFunc adapts a plain function to Gateway.
type GatewayFunc func(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error)

func (f GatewayFunc) Invoke(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error) {
	return f(ctx, messages, opts...)
}

// Options collects per-call settings.
type Options struct {
	Temperature *float32
}

type Option func(*Options)

// WithTemperature overrides the provider default temperature for one call.
func WithTemperature(t float32) Option {
	return func(o *Options) {
		o.Temperature = &t
	}
}

// ApplyOptions folds opts into an Options value.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// New builds the provider gateway selected by cfg.Provider, wrapped with retries.
func New(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (Gateway, error) {
	var (
		base Gateway
		err  error
	)

	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIGateway(cfg)
	case "ark", "":
		chatModel, modelErr := cfg.NewChatModel(ctx)
		if modelErr != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", modelErr)
		}
		base = NewChatModelGateway("ark", chatModel)
	default:
		err = fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewRetryingGateway(base, RetryConfig{
		MaxAttempts: cfg.RetryMax,
		MinWait:     cfg.RetryMinWait,
		MaxWait:     cfg.RetryMaxWait,
	}, log), nil
}
