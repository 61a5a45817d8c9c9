package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

// RetryConfig bounds the exponential backoff between attempts.
type RetryConfig struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// RetryingGateway retries transient failures with exponential backoff.
// Fatal errors and context cancellation return immediately.
type RetryingGateway struct {
	next  Gateway
	cfg   RetryConfig
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryingGateway(next Gateway, cfg RetryConfig, log *zap.Logger) *RetryingGateway {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = 2 * time.Second
	}
	if cfg.MaxWait < cfg.MinWait {
		cfg.MaxWait = cfg.MinWait
	}
	return &RetryingGateway{
		next:  next,
		cfg:   cfg,
		log:   logger.OrNop(log).Named("llm.retry"),
		sleep: sleepCtx,
	}
}

func (g *RetryingGateway) Invoke(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		out, err := g.next.Invoke(ctx, messages, opts...)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == g.cfg.MaxAttempts {
			break
		}

		wait := g.backoff(attempt)
		g.log.Warn("llm call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := g.sleep(ctx, wait); err != nil {
			return "", NewFatal("retry", err)
		}
	}
	return "", lastErr
}

// backoff doubles MinWait per attempt, capped at MaxWait.
func (g *RetryingGateway) backoff(attempt int) time.Duration {
	wait := g.cfg.MinWait * time.Duration(1<<(attempt-1))
	if wait > g.cfg.MaxWait || wait <= 0 {
		wait = g.cfg.MaxWait
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
