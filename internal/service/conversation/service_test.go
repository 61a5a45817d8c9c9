package conversation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
)

type fakeAssistant struct {
	result agent.Result
	got    []string
}

func (f *fakeAssistant) ProcessMessage(_ context.Context, text, sessionID string, _ ...agent.TurnOption) agent.Result {
	f.got = append(f.got, sessionID+":"+text)
	return f.result
}

func TestAskRecordsBothMessages(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(10, nil)
	s, _ := store.CreateSession(ctx, "")
	assistant := &fakeAssistant{result: agent.Result{
		Answer: "Term life covers a set period.", Sources: []string{"policy_types.md"},
		Reasoning: "Intent: POLICY_TYPES", Success: true,
	}}
	svc := conversation.New(store, assistant, nil)

	reply, err := svc.Ask(ctx, s.ID, "What is term life?")
	require.NoError(t, err)
	assert.Equal(t, "Term life covers a set period.", reply.Message)
	assert.Equal(t, []string{"policy_types.md"}, reply.Sources)
	assert.Equal(t, "Intent: POLICY_TYPES", reply.Reasoning)
	assert.Equal(t, []string{s.ID + ":What is term life?"}, assistant.got)

	msgs, err := store.RecentMessages(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Intent: POLICY_TYPES", msgs[1].Metadata["reasoning"])
}

func TestAskUnknownSession(t *testing.T) {
	svc := conversation.New(session.NewMemoryStore(10, nil), &fakeAssistant{}, nil)
	_, err := svc.Ask(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAskFailedTurnKeepsOnlyUserMessage(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(10, nil)
	s, _ := store.CreateSession(ctx, "")
	svc := conversation.New(store, &fakeAssistant{result: agent.Result{Answer: agent.TurnFailed, Reasoning: "Error: boom"}}, nil)

	reply, err := svc.Ask(ctx, s.ID, "hi")
	assert.ErrorIs(t, err, conversation.ErrTurnFailed)
	assert.Equal(t, "Error: boom", reply.Result.Reasoning)

	msgs, _ := store.RecentMessages(ctx, s.ID, 0)
	assert.Len(t, msgs, 1)
}
