package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
	"github.com/zhouzirui/lifeline/backend/pkg/utils"
)

// Handler 通过 Server-Sent Events 推送一次问答的阶段进度与最终回答
type Handler struct {
	conv *conversation.Service
	log  *zap.Logger
}

// New creates a new stream handler
func New(conv *conversation.Service, log *zap.Logger) *Handler {
	return &Handler{conv: conv, log: logger.OrNop(log).Named("handler.stream")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	SessionID string   `json:"session_id,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms,omitempty"`
	Intent    string   `json:"intent,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	Content   string   `json:"content,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Reasoning string   `json:"agent_reasoning,omitempty"`
	Finished  bool     `json:"finished,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	ok, err := h.conv.Store().Exists(r.Context(), sessionID)
	if err != nil {
		h.log.Error("failed to check session", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "Session "+sessionID+" not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := h.HandleStreamRequest(r.Context(), w, flusher, sessionID, message); err != nil {
		h.log.Warn("stream ended with error", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// HandleStreamRequest runs one turn and writes start, stage, message and end
// events. Any failure is sent as an error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, message string) error {
	send := func(event string, payload StreamResponse) {
		if err := utils.SendSSEEvent(w, flusher, event, payload); err != nil {
			h.log.Debug("failed to write sse event", zap.String("event", event), zap.Error(err))
		}
	}

	send("start", StreamResponse{SessionID: sessionID})

	progress := agent.StageFunc(func(_ context.Context, ev agent.StageEvent) {
		send("stage", StreamResponse{
			SessionID: sessionID,
			Stage:     ev.Stage.String(),
			ElapsedMs: ev.Elapsed.Milliseconds(),
			Intent:    string(ev.Intent),
			Tools:     ev.Tools,
		})
	})

	reply, err := h.conv.Ask(ctx, sessionID, message, agent.WithObserver(progress))
	if err != nil {
		msg := err.Error()
		if errors.Is(err, session.ErrSessionNotFound) {
			msg = "Session " + sessionID + " not found"
		}
		send("error", StreamResponse{SessionID: sessionID, Error: msg})
		return err
	}

	send("message", StreamResponse{
		SessionID: sessionID,
		Content:   reply.Message,
		Sources:   reply.Sources,
		Reasoning: reply.Reasoning,
		Intent:    string(reply.Result.Intent),
		Tools:     reply.Result.ToolsUsed,
	})
	send("end", StreamResponse{SessionID: sessionID, Finished: true})

	h.log.Info("stream completed", zap.String("session_id", sessionID))
	return nil
}
