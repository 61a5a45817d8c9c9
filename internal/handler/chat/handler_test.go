package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
)

type stubAssistant struct {
	result agent.Result
}

func (s stubAssistant) ProcessMessage(context.Context, string, string, ...agent.TurnOption) agent.Result {
	return s.result
}

func setupRouter(result agent.Result) (*chi.Mux, session.Store) {
	store := session.NewMemoryStore(10, nil)
	handler := New(conversation.New(store, stubAssistant{result: result}, nil), nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func okResult() agent.Result {
	return agent.Result{
		Answer:    "Term life insurance covers a fixed period.",
		Sources:   []string{"policy_types.md"},
		Reasoning: "Intent: POLICY_TYPES",
		Success:   true,
	}
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := do(r, http.MethodPost, "/session", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusCreated, resp.Code)

	var out struct {
		SessionID    string `json:"session_id"`
		MessageCount int    `json:"message_count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.NotEmpty(t, out.SessionID)
	assert.Zero(t, out.MessageCount)
	return out.SessionID
}

func TestCreateSessionWithoutBody(t *testing.T) {
	r, _ := setupRouter(okResult())
	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestSendMessage(t *testing.T) {
	r, store := setupRouter(okResult())
	id := createSession(t, r)

	resp := do(r, http.MethodPost, "/message", map[string]string{"session_id": id, "message": "What is term life?"})
	require.Equal(t, http.StatusOK, resp.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, id, out["session_id"])
	assert.Equal(t, "Term life insurance covers a fixed period.", out["message"])
	assert.Equal(t, []any{"policy_types.md"}, out["sources"])
	assert.Equal(t, "Intent: POLICY_TYPES", out["agent_reasoning"])
	assert.NotEmpty(t, out["timestamp"])

	s, err := store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, s.MessageCount)
}

func TestSendMessageValidation(t *testing.T) {
	r, _ := setupRouter(okResult())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/message", map[string]string{"message": "hi"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/message", map[string]string{"session_id": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/message", map[string]string{"session_id": "missing", "message": "hi"}).Code)
}

func TestSendMessageFailedTurn(t *testing.T) {
	r, _ := setupRouter(agent.Result{Answer: agent.TurnFailed, Reasoning: "Error: boom"})
	id := createSession(t, r)

	resp := do(r, http.MethodPost, "/message", map[string]string{"session_id": id, "message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestSessionHistoryDeleteAndList(t *testing.T) {
	r, _ := setupRouter(okResult())
	id := createSession(t, r)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/message", map[string]string{"session_id": id, "message": "hello"}).Code)

	history := do(r, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, history.Code)
	var h struct {
		Messages []struct {
			Role     string         `json:"role"`
			Content  string         `json:"content"`
			Metadata map[string]any `json:"metadata"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(history.Body.Bytes(), &h))
	require.Len(t, h.Messages, 2)
	assert.Equal(t, "user", h.Messages[0].Role)
	assert.Equal(t, "Intent: POLICY_TYPES", h.Messages[1].Metadata["reasoning"])

	list := do(r, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var l struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &l))
	assert.Equal(t, 1, l.Total)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/session/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/session/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/session/"+id, nil).Code)
}
