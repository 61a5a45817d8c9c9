package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
)

// fixed answers every stage with canned values.
type fixed struct {
	panicOnGenerate bool
}

func (fixed) Classify(context.Context, string) agent.Category { return agent.Claims }

func (fixed) Retrieve(context.Context, string, agent.Category, string) string {
	return "[Source 1: claims.md]\nFile within 30 days."
}

func (fixed) ShouldUseTools(context.Context, string, agent.Category) bool { return false }

func (fixed) Execute(context.Context, string) agent.ToolResults { return agent.ToolResults{} }

func (f fixed) Generate(context.Context, string, string, agent.ToolResults, string) string {
	if f.panicOnGenerate {
		panic("generator exploded")
	}
	return "Submit the claim form with a death certificate."
}

type sseEvent struct {
	name string
	data StreamResponse
}

func setup(t *testing.T, stage fixed) (*chi.Mux, session.Store) {
	t.Helper()
	o, err := agent.NewOrchestrator(agent.Stages{
		Classifier: stage, Retriever: stage, Selector: stage, Executor: stage, Generator: stage,
	}, nil, nil)
	require.NoError(t, err)

	store := session.NewMemoryStore(10, nil)
	r := chi.NewRouter()
	New(conversation.New(store, o, nil), nil).RegisterRoutes(r)
	return r, store
}

func readEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		name   string
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var resp StreamResponse
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &resp))
			events = append(events, sseEvent{name: name, data: resp})
		}
	}
	return events
}

func names(events []sseEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.name)
	}
	return out
}

func TestStreamEmitsStagesThenAnswer(t *testing.T) {
	r, store := setup(t, fixed{})
	s, _ := store.CreateSession(context.Background(), "")

	req := httptest.NewRequest(http.MethodGet, "/stream/"+s.ID+"?message=How+do+I+file+a+claim", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	events := readEvents(t, resp.Body.String())
	assert.Equal(t, []string{"start", "stage", "stage", "stage", "message", "end"}, names(events))

	assert.Equal(t, "intent_classified", events[1].data.Stage)
	assert.Equal(t, "CLAIMS", events[1].data.Intent)
	assert.Equal(t, "context_retrieved", events[2].data.Stage)
	assert.Equal(t, "answer_generated", events[3].data.Stage)

	msg := events[4].data
	assert.Equal(t, "Submit the claim form with a death certificate.", msg.Content)
	assert.Equal(t, []string{"claims.md"}, msg.Sources)
	assert.Contains(t, msg.Reasoning, "CLAIMS")
	assert.True(t, events[5].data.Finished)

	history, err := store.RecentMessages(context.Background(), s.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestStreamFailedTurnSendsErrorEvent(t *testing.T) {
	r, store := setup(t, fixed{panicOnGenerate: true})
	s, _ := store.CreateSession(context.Background(), "")

	req := httptest.NewRequest(http.MethodGet, "/stream/"+s.ID+"?message=hello", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	events := readEvents(t, resp.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.name)
	assert.NotEmpty(t, last.data.Error)
	assert.NotContains(t, names(events), "message")
}

func TestStreamRejectsBadRequests(t *testing.T) {
	r, store := setup(t, fixed{})
	s, _ := store.CreateSession(context.Background(), "")

	tests := []struct {
		name string
		path string
		code int
	}{
		{"missing message", "/stream/" + s.ID, http.StatusBadRequest},
		{"blank message", "/stream/" + s.ID + "?message=++", http.StatusBadRequest},
		{"unknown session", "/stream/missing?message=hi", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}
