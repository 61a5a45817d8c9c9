package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/config"
	personaModel "github.com/zhouzirui/lifeline/backend/internal/model/persona"
	"github.com/zhouzirui/lifeline/backend/internal/observability"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
)

type echoAssistant struct{}

func (echoAssistant) ProcessMessage(_ context.Context, text, _ string, _ ...agent.TurnOption) agent.Result {
	return agent.Result{Answer: "echo: " + text, Sources: []string{}, Reasoning: "Intent: GENERAL", Success: true}
}

func newTestRouter(t *testing.T, components []Component, rl config.RateLimitConfig) http.Handler {
	t.Helper()
	store := session.NewMemoryStore(10, nil)
	return NewRouter(Deps{
		Version:      "test",
		Personas:     personaModel.NewMemoryStore(personaModel.Seed()),
		Conversation: conversation.New(store, echoAssistant{}, nil),
		Metrics:      observability.NewMetrics(),
		RateLimit:    rl,
		Components:   components,
	})
}

func TestHealthReportsComponents(t *testing.T) {
	r := newTestRouter(t, []Component{
		{Name: "knowledge", Backend: "bleve", Check: func(context.Context) error { return nil }},
		{Name: "sessions", Backend: "memory"},
	}, config.RateLimitConfig{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "bleve", body.Components["knowledge"].Backend)
	assert.Equal(t, "ok", body.Components["sessions"].Status)
}

func TestHealthDegradedWhenCheckFails(t *testing.T) {
	r := newTestRouter(t, []Component{
		{Name: "sessions", Backend: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	}, config.RateLimitConfig{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "connection refused")
}

func TestChatRoundTripThroughRouter(t *testing.T) {
	r := newTestRouter(t, nil, config.RateLimitConfig{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/chat/session", nil))
	require.Equal(t, http.StatusCreated, resp.Code)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	body := `{"session_id":"` + created.SessionID + `","message":"hello"}`
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/chat/message", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "echo: hello")

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/personas", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `lifeline_http_requests_total{method="POST",route="/api/v1/chat/message",status="200"} 1`)
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	r := newTestRouter(t, nil, config.RateLimitConfig{Enabled: true, Calls: 1, Period: time.Minute})

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.1.1:1234"
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	assert.Equal(t, http.StatusOK, do("/api/v1/personas"))
	assert.Equal(t, http.StatusTooManyRequests, do("/api/v1/personas"))
	assert.Equal(t, http.StatusOK, do("/health"))
}
