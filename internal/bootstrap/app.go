// Package bootstrap assembles the assistant from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/handler"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/persona"
	"github.com/zhouzirui/lifeline/backend/internal/observability"
	"github.com/zhouzirui/lifeline/backend/internal/service/cache"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
	"github.com/zhouzirui/lifeline/backend/internal/service/tools"
)

// App holds every long lived component of a running assistant.
type App struct {
	Config       *config.Config
	Log          *zap.Logger
	Personas     persona.Store
	Sessions     session.Store
	Knowledge    knowledge.Backend
	Metrics      *observability.Metrics
	Tracing      *observability.Tracing
	Orchestrator *agent.Orchestrator
	Conversation *conversation.Service

	closers []func(context.Context) error
}

// New connects the configured model provider and builds the app around it.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	gw, err := llm.New(ctx, cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfg, gw, log)
}

// Build wires stores, retrieval, tools and the agent pipeline around gw.
func Build(ctx context.Context, cfg *config.Config, gw llm.Gateway, log *zap.Logger) (_ *App, err error) {
	log = logger.OrNop(log)
	app := &App{
		Config:   cfg,
		Log:      log,
		Personas: persona.NewMemoryStore(persona.Seed()),
		Metrics:  observability.NewMetrics(),
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	app.Tracing, err = observability.SetupTracing(cfg.Observability)
	if err != nil {
		return nil, err
	}
	app.onClose(app.Tracing.Shutdown)

	app.Sessions, err = session.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	app.onClose(func(context.Context) error { return app.Sessions.Close() })

	var redisClient *redis.Client
	if cfg.Cache.Enabled && cfg.Cache.Backend == "redis" {
		redisClient = session.NewRedisClient(cfg.Redis)
		app.onClose(func(context.Context) error { return redisClient.Close() })
	}
	responses := cache.Open(cfg.Cache, redisClient, cfg.Redis.Prefix, log)

	app.Knowledge, err = knowledge.Open(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	app.onClose(func(context.Context) error { return app.Knowledge.Close() })

	if cfg.Knowledge.IndexOnStart {
		if err := knowledge.EnsureIndexed(ctx, app.Knowledge, cfg.Knowledge, log); err != nil {
			log.Warn("knowledge base not indexed, answers will lack context", zap.Error(err))
		}
	}

	retriever := knowledge.WithRecorder(
		knowledge.NewCachedRetriever(app.Knowledge, responses, log),
		app.Metrics,
	)
	gateway := llm.NewCachingGateway(
		llm.WithRecorder(gw, cfg.LLM.Provider, app.Metrics),
		responses, log,
	)

	app.Orchestrator, err = buildOrchestrator(ctx, cfg, gateway, retriever, app.Sessions, app.Personas,
		agent.Observers{app.Metrics, app.Tracing}, app.Metrics, log)
	if err != nil {
		return nil, err
	}
	app.Conversation = conversation.New(app.Sessions, app.Orchestrator, log)
	return app, nil
}

func buildOrchestrator(
	ctx context.Context,
	cfg *config.Config,
	gw llm.Gateway,
	retriever knowledge.Retriever,
	history agent.HistorySource,
	personas persona.Store,
	observer agent.Observer,
	toolRec agent.ToolRecorder,
	log *zap.Logger,
) (*agent.Orchestrator, error) {
	ac := cfg.Agent

	classifier, err := agent.NewIntentClassifier(ctx, gw, float32(ac.IntentTemperature), log)
	if err != nil {
		return nil, err
	}
	selector, err := agent.NewToolSelector(ctx, gw, float32(ac.ToolSelectionTemperature), log)
	if err != nil {
		return nil, err
	}

	premium, err := tools.NewPremiumCalculator(gw, retriever, cfg.Tools, log)
	if err != nil {
		return nil, err
	}
	executor := agent.NewToolExecutor(
		premium,
		tools.NewEligibilityAssessor(gw, retriever, cfg.Tools, log),
		tools.NewKnowledgeComparator(retriever, ac.ComparisonK),
		agent.Defaults{Age: cfg.Tools.DefaultAge, Coverage: cfg.Tools.DefaultCoverage, Term: cfg.Tools.DefaultTerm},
		toolRec, log,
	)

	advisor, found := persona.Resolve(personas, ac.PersonaID)
	if !found {
		log.Warn("unknown persona, using default", zap.String("persona_id", ac.PersonaID))
	}
	generator, err := agent.NewResponseGenerator(ctx, gw, &advisor, history, ac.AnswerHistoryMessages, log)
	if err != nil {
		return nil, err
	}

	return agent.NewOrchestrator(agent.Stages{
		Classifier: classifier,
		Retriever:  agent.NewContextRetriever(retriever, history, ac.SearchK, ac.SearchHistoryMessages, log),
		Selector:   selector,
		Executor:   executor,
		Generator:  generator,
	}, observer, log)
}

// Router exposes the app over HTTP.
func (a *App) Router(version string) http.Handler {
	deps := handler.Deps{
		Version:      version,
		Personas:     a.Personas,
		Conversation: a.Conversation,
		RateLimit:    a.Config.RateLimit,
		Log:          a.Log,
		Components: []handler.Component{
			{Name: "knowledge", Backend: a.Config.Knowledge.Backend, Check: func(ctx context.Context) error {
				_, err := a.Knowledge.Count(ctx)
				return err
			}},
			{Name: "sessions", Backend: a.Config.Memory.Backend, Check: a.Sessions.Ping},
		},
	}
	if a.Config.Observability.MetricsEnabled {
		deps.Metrics = a.Metrics
	}
	return handler.NewRouter(deps)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
