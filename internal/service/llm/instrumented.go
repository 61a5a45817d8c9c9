package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// CallRecorder receives one observation per gateway call.
type CallRecorder interface {
	RecordLLMCall(provider, outcome string, elapsed time.Duration)
}

type instrumentedGateway struct {
	next     Gateway
	provider string
	rec      CallRecorder
}

// WithRecorder reports outcome ("ok", "transient", "fatal") and latency of every call.
func WithRecorder(next Gateway, provider string, rec CallRecorder) Gateway {
	if rec == nil {
		return next
	}
	return &instrumentedGateway{next: next, provider: provider, rec: rec}
}

func (g *instrumentedGateway) Invoke(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error) {
	start := time.Now()
	out, err := g.next.Invoke(ctx, messages, opts...)

	outcome := "ok"
	switch {
	case err == nil:
	case IsTransient(err):
		outcome = "transient"
	default:
		outcome = "fatal"
	}
	g.rec.RecordLLMCall(g.provider, outcome, time.Since(start))
	return out, err
}
