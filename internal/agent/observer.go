package agent

import (
	"context"
	"time"
)

// StageEvent describes one completed pipeline transition.
type StageEvent struct {
	SessionID string
	Stage     Stage
	Started   time.Time
	Elapsed   time.Duration
	Intent    Category
	Tools     []string
}

// Observer watches turns as they move through the pipeline. TurnStarted may
// return a derived context, which is then passed to every later callback and
// to the stages themselves.
type Observer interface {
	TurnStarted(ctx context.Context, sessionID, question string) context.Context
	StageCompleted(ctx context.Context, ev StageEvent)
	TurnFinished(ctx context.Context, res Result, elapsed time.Duration)
}

// Observers fans every callback out in order.
type Observers []Observer

func (o Observers) TurnStarted(ctx context.Context, sessionID, question string) context.Context {
	for _, obs := range o {
		ctx = obs.TurnStarted(ctx, sessionID, question)
	}
	return ctx
}

func (o Observers) StageCompleted(ctx context.Context, ev StageEvent) {
	for _, obs := range o {
		obs.StageCompleted(ctx, ev)
	}
}

func (o Observers) TurnFinished(ctx context.Context, res Result, elapsed time.Duration) {
	for _, obs := range o {
		obs.TurnFinished(ctx, res, elapsed)
	}
}

// StageFunc adapts a plain callback into an Observer that only sees stage events.
type StageFunc func(ctx context.Context, ev StageEvent)

func (f StageFunc) TurnStarted(ctx context.Context, _, _ string) context.Context { return ctx }
func (f StageFunc) StageCompleted(ctx context.Context, ev StageEvent)             { f(ctx, ev) }
func (f StageFunc) TurnFinished(context.Context, Result, time.Duration)          {}

// TurnOption customizes a single ProcessMessage call.
type TurnOption func(*turnOptions)

type turnOptions struct {
	observers Observers
}

// WithObserver attaches an observer to one turn only.
func WithObserver(o Observer) TurnOption {
	return func(t *turnOptions) {
		if o != nil {
			t.observers = append(t.observers, o)
		}
	}
}
