package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

// TurnFailed is the answer given when a turn aborts outside the stages.
const TurnFailed = "I apologize, but I encountered an error. Please try again."

var sourcePattern = regexp.MustCompile(`\[Source \d+: ([^\]]+)\]`)

type Classifier interface {
	Classify(ctx context.Context, question string) Category
}

type ContextSource interface {
	Retrieve(ctx context.Context, question string, intent Category, sessionID string) string
}

type Selector interface {
	ShouldUseTools(ctx context.Context, question string, intent Category) bool
}

type Executor interface {
	Execute(ctx context.Context, question string) ToolResults
}

type Generator interface {
	Generate(ctx context.Context, question, retrieved string, results ToolResults, sessionID string) string
}

// Stages are the five pipeline components.
type Stages struct {
	Classifier Classifier
	Retriever  ContextSource
	Selector   Selector
	Executor   Executor
	Generator  Generator
}

func (s Stages) validate() error {
	switch {
	case s.Classifier == nil:
		return errors.New("intent classifier is required")
	case s.Retriever == nil:
		return errors.New("context retriever is required")
	case s.Selector == nil:
		return errors.New("tool selector is required")
	case s.Executor == nil:
		return errors.New("tool executor is required")
	case s.Generator == nil:
		return errors.New("response generator is required")
	}
	return nil
}

// Result is what a caller gets back for one message.
type Result struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	Reasoning string   `json:"reasoning"`
	Success   bool     `json:"success"`
	Intent    Category `json:"intent,omitempty"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// Orchestrator drives a question through the pipeline. It keeps no state
// between turns and is safe for concurrent use.
type Orchestrator struct {
	stages   Stages
	observer Observer
	log      *zap.Logger
}

func NewOrchestrator(stages Stages, observer Observer, log *zap.Logger) (*Orchestrator, error) {
	if err := stages.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		stages:   stages,
		observer: observer,
		log:      logger.OrNop(log).Named("agent.orchestrator"),
	}, nil
}

// ProcessMessage answers one question. It never panics and always returns an
// answer; Success is false only when the turn aborted outside stage handling.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text, sessionID string, opts ...TurnOption) (res Result) {
	var to turnOptions
	for _, opt := range opts {
		opt(&to)
	}
	obs := Observers(nil)
	if o.observer != nil {
		obs = append(obs, o.observer)
	}
	obs = append(obs, to.observers...)

	began := time.Now()
	turnCtx := ctx
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("turn panicked", zap.String("session_id", sessionID), zap.Any("panic", r), zap.Stack("stack"))
			res = failure(fmt.Errorf("%v", r))
		}
		o.finish(turnCtx, obs, sessionID, res, time.Since(began))
	}()
	turnCtx = obs.TurnStarted(ctx, sessionID, text)
	ctx = turnCtx

	state := NewTurnState(text, sessionID)
	if err := o.run(ctx, state, obs); err != nil {
		o.log.Error("turn failed", zap.String("session_id", sessionID), zap.Error(err))
		return failure(err)
	}

	res = Result{
		Answer:    state.Answer(),
		Sources:   ExtractSources(state.Context()),
		Reasoning: reasoning(state),
		Success:   true,
		Intent:    state.Intent(),
		ToolsUsed: state.Tools().Names(),
	}
	o.log.Info("turn completed",
		zap.String("session_id", sessionID),
		zap.String("intent", string(res.Intent)),
		zap.Strings("tools", res.ToolsUsed),
		zap.Duration("elapsed", time.Since(began)))
	return res
}

// finish reports the result; an observer panic here must not replace it.
func (o *Orchestrator) finish(ctx context.Context, obs Observer, sessionID string, res Result, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("turn observer panicked", zap.String("session_id", sessionID), zap.Any("panic", r))
		}
	}()
	obs.TurnFinished(ctx, res, elapsed)
}

func (o *Orchestrator) run(ctx context.Context, state *TurnState, obs Observer) error {
	for state.Stage() != StageEnd {
		started := time.Now()
		next, err := o.step(ctx, state)
		if err != nil {
			return fmt.Errorf("%s: %w", state.Stage(), err)
		}
		if err := state.advance(next); err != nil {
			return err
		}
		if next == StageEnd {
			break
		}
		obs.StageCompleted(ctx, StageEvent{
			SessionID: state.SessionID(),
			Stage:     next,
			Started:   started,
			Elapsed:   time.Since(started),
			Intent:    state.Intent(),
			Tools:     state.Tools().Names(),
		})
	}
	return nil
}

// step performs the work of the current stage and returns the next one.
func (o *Orchestrator) step(ctx context.Context, state *TurnState) (Stage, error) {
	q, sid := state.Question(), state.SessionID()

	switch state.Stage() {
	case StageStart:
		return StageIntentClassified, state.SetIntent(o.stages.Classifier.Classify(ctx, q))

	case StageIntentClassified:
		return StageContextRetrieved, state.SetContext(o.stages.Retriever.Retrieve(ctx, q, state.Intent(), sid))

	case StageContextRetrieved:
		if o.stages.Selector.ShouldUseTools(ctx, q, state.Intent()) {
			return StageToolsExecuted, state.SetTools(o.stages.Executor.Execute(ctx, q))
		}
		return StageAnswerGenerated, o.generate(ctx, state)

	case StageToolsExecuted:
		return StageAnswerGenerated, o.generate(ctx, state)

	case StageAnswerGenerated:
		return StageEnd, nil
	}
	return state.Stage(), fmt.Errorf("no transition from %s", state.Stage())
}

func (o *Orchestrator) generate(ctx context.Context, state *TurnState) error {
	answer := o.stages.Generator.Generate(ctx, state.Question(), state.Context(), state.Tools(), state.SessionID())
	return state.SetAnswer(answer)
}

// ExtractSources returns the distinct source names cited in a formatted
// context, in order of first appearance.
func ExtractSources(retrieved string) []string {
	matches := sourcePattern.FindAllStringSubmatch(retrieved, -1)
	sources := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		sources = append(sources, m[1])
	}
	return sources
}

func reasoning(state *TurnState) string {
	out := "Intent: " + string(state.Intent())
	if names := state.Tools().Names(); len(names) > 0 {
		out += " | Tools Used: " + strings.Join(names, ", ")
	}
	return out
}

func failure(err error) Result {
	return Result{
		Answer:    TurnFailed,
		Sources:   []string{},
		Reasoning: "Error: " + err.Error(),
		Success:   false,
	}
}
