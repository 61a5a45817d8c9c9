package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/handler/chat"
	"github.com/zhouzirui/lifeline/backend/internal/handler/persona"
	"github.com/zhouzirui/lifeline/backend/internal/handler/stream"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	middlewarePkg "github.com/zhouzirui/lifeline/backend/internal/middleware"
	personaModel "github.com/zhouzirui/lifeline/backend/internal/model/persona"
	"github.com/zhouzirui/lifeline/backend/internal/observability"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/pkg/utils"
)

// Component is a dependency reported by /health.
type Component struct {
	Name    string
	Backend string
	Check   func(ctx context.Context) error
}

// Deps are the services the HTTP layer serves.
type Deps struct {
	Version      string
	Personas     personaModel.Store
	Conversation *conversation.Service
	Metrics      *observability.Metrics
	RateLimit    config.RateLimitConfig
	Components   []Component
	Log          *zap.Logger
}

type componentStatus struct {
	Backend string `json:"backend"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]componentStatus `json:"components"`
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := logger.OrNop(deps.Log)
	r := chi.NewRouter()

	var rec middlewarePkg.HTTPRecorder
	if deps.Metrics != nil {
		rec = deps.Metrics
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log, rec))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	if deps.RateLimit.Enabled {
		r.Use(middlewarePkg.NewRateLimiter(deps.RateLimit).Handler)
	}

	r.Get("/health", healthHandler(deps.Version, deps.Components))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	personaHandler := persona.New(deps.Personas)
	chatHandler := chat.New(deps.Conversation, log)
	wsHandler := chat.NewWebSocketHandler(deps.Conversation, log)
	streamHandler := stream.New(deps.Conversation, log)

	r.Route("/api/v1", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)

		api.Route("/chat", func(c chi.Router) {
			chatHandler.RegisterRoutes(c)
			streamHandler.RegisterRoutes(c)
			wsHandler.RegisterWebSocketRoutes(c)
		})
	})

	return r
}

// healthHandler reports every component; any failing check turns the
// response into 503 degraded.
func healthHandler(version string, components []Component) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:     "healthy",
			Version:    version,
			Components: make(map[string]componentStatus, len(components)),
		}
		for _, c := range components {
			st := componentStatus{Backend: c.Backend, Status: "ok"}
			if c.Check != nil {
				if err := c.Check(ctx); err != nil {
					st.Status = "error"
					st.Error = err.Error()
					resp.Status = "degraded"
				}
			}
			resp.Components[c.Name] = st
		}

		code := http.StatusOK
		if resp.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		utils.RespondJSON(w, code, resp)
	}
}
