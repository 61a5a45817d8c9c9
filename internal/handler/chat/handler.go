package chat

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
	"github.com/zhouzirui/lifeline/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	store session.Store
	conv  *conversation.Service
	log   *zap.Logger
}

// New 创建聊天处理器
func New(conv *conversation.Service, log *zap.Logger) *Handler {
	return &Handler{
		store: conv.Store(),
		conv:  conv,
		log:   logger.OrNop(log).Named("handler.chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/message", h.handleSendMessage)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Get("/sessions", h.handleListSessions)
}

type sessionResponse struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Messages  []chat.Message `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// handleCreateSession 创建会话，请求体可为空
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"user_id"`
	}
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	s, err := h.store.CreateSession(r.Context(), payload.UserID)
	if err != nil {
		h.log.Error("failed to create session", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{
		SessionID:    s.ID,
		CreatedAt:    s.CreatedAt,
		MessageCount: 0,
	})
}

// handleSendMessage 发送消息并返回助手回答
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.conv.Ask(r.Context(), payload.SessionID, payload.Message)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session "+payload.SessionID+" not found. Please create a session first.")
		return
	case errors.Is(err, conversation.ErrTurnFailed):
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process message")
		return
	case err != nil:
		h.log.Error("failed to process message", zap.String("session_id", payload.SessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Error processing message: "+err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleGetSession 返回会话历史
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	s, err := h.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Session "+sessionID+" not found")
		return
	}
	if err != nil {
		h.log.Error("failed to load session", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to retrieve session history")
		return
	}

	messages, err := h.store.RecentMessages(r.Context(), sessionID, 0)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		h.log.Error("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to retrieve session history")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	utils.RespondJSON(w, http.StatusOK, historyResponse{
		SessionID: s.ID,
		Messages:  messages,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	err := h.store.DeleteSession(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Session "+sessionID+" not found")
		return
	}
	if err != nil {
		h.log.Error("failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSessions 列出所有会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.log.Error("failed to list sessions", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}
