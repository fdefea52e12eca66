package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/contextbudget"
	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/llm/queue"
	"github.com/parley-ai/parley/llm/tokenizer"
	"github.com/parley-ai/parley/orchestrator"
	"github.com/parley-ai/parley/signals"
	"github.com/parley-ai/parley/store"
	"github.com/parley-ai/parley/transport"
	"github.com/parley-ai/parley/types"
)

// firstPersonaRouter always routes to the first active persona and never
// continues the discussion.
type firstPersonaRouter struct{}

func (firstPersonaRouter) DecideRouting(_ context.Context, _ *types.Conversation, _ types.Message, _ signals.Signals, active []types.Persona) types.RoutingDecision {
	if len(active) == 0 {
		return types.RoutingDecision{Action: types.ActionEnd}
	}
	return types.RoutingDecision{
		SelectedPersonas: []string{active[0].ID},
		Confidence:       1.0,
		Action:           types.ActionRouteToPersona,
	}
}

func (firstPersonaRouter) DecideContinuation(_ context.Context, _ *types.Conversation, _ []types.Message, _ string) types.ContinuationDecision {
	return types.ContinuationDecision{Continue: false}
}

type echoInference struct{}

func (echoInference) Enqueue(_ context.Context, _ *queue.Request) (*llm.GenerateResponse, error) {
	return &llm.GenerateResponse{Text: "echo response"}, nil
}

type serviceFixture struct {
	svc      *ConversationService
	registry *orchestrator.Registry
	store    *store.MemoryStore
	srv      *httptest.Server
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	st := store.NewMemoryStore()
	registry := orchestrator.NewRegistry(orchestrator.DefaultRegistryConfig(), st, zap.NewNop())
	hub := NewHub(nil)
	budgeter := contextbudget.New(contextbudget.DefaultConfig(), tokenizer.NewEstimator(), zap.NewNop())
	orch := orchestrator.New(firstPersonaRouter{}, echoInference{}, budgeter,
		orchestrator.WithEmitter(hub),
		orchestrator.WithStore(st),
	)
	svc := NewConversationService(registry, st, orch, hub, 20, nil, nil)
	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return &serviceFixture{svc: svc, registry: registry, store: st, srv: srv}
}

func (f *serviceFixture) createConversation(t *testing.T) *types.Conversation {
	t.Helper()
	body, err := json.Marshal(createConversationRequest{
		UserID: "u1",
		Personas: []types.Persona{
			{ID: "p1", Name: "Ada", SystemPrompt: "You are Ada."},
			{ID: "p2", Name: "Grace", SystemPrompt: "You are Grace."},
		},
	})
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/conversations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var conv types.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	return &conv
}

func TestCreateAndGetConversation(t *testing.T) {
	f := newServiceFixture(t)
	conv := f.createConversation(t)
	require.NotEmpty(t, conv.ID)

	resp, err := http.Get(f.srv.URL + "/conversations/" + conv.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, conv.ID, got.ID)
	assert.Len(t, got.Personas, 2)
}

func TestCreateRejectsEmptyPersonas(t *testing.T) {
	f := newServiceFixture(t)
	resp, err := http.Post(f.srv.URL+"/conversations", "application/json",
		strings.NewReader(`{"user_id":"u1","personas":[]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRejectsDuplicatePersonaIDs(t *testing.T) {
	f := newServiceFixture(t)
	resp, err := http.Post(f.srv.URL+"/conversations", "application/json",
		strings.NewReader(`{"personas":[{"id":"p1","name":"Ada"},{"id":"p1","name":"Grace"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownConversation(t *testing.T) {
	f := newServiceFixture(t)
	resp, err := http.Get(f.srv.URL + "/conversations/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetFallsBackToStore(t *testing.T) {
	f := newServiceFixture(t)
	conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
	require.NoError(t, f.store.Save(context.Background(), conv))

	resp, err := http.Get(f.srv.URL + "/conversations/" + conv.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A store hit lands back in the registry.
	_, ok := f.registry.Get(conv.ID)
	assert.True(t, ok)
}

func TestListByUser(t *testing.T) {
	f := newServiceFixture(t)
	for range 3 {
		conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
		require.NoError(t, f.store.Save(context.Background(), conv))
	}
	other := types.NewConversation("u2", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
	require.NoError(t, f.store.Save(context.Background(), other))

	resp, err := http.Get(f.srv.URL + "/conversations?user_id=u1&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var convs []*types.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convs))
	assert.Len(t, convs, 3)
}

func TestListRequiresUserID(t *testing.T) {
	f := newServiceFixture(t)
	resp, err := http.Get(f.srv.URL + "/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteConversation(t *testing.T) {
	f := newServiceFixture(t)
	conv := f.createConversation(t)

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/conversations/"+conv.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleted everywhere: neither registry nor store resolves it.
	getResp, err := http.Get(f.srv.URL + "/conversations/" + conv.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestWebSocketRequiresKnownConversation(t *testing.T) {
	f := newServiceFixture(t)
	resp, err := http.Get(f.srv.URL + "/ws?conversation_id=no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketTurnRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	conv := f.createConversation(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?conversation_id=" + conv.ID
	client, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer client.Close(websocket.StatusNormalClosure, "done")

	frame, err := json.Marshal(transport.InboundFrame{
		Kind:           transport.InboundUserMessage,
		ConversationID: conv.ID,
		Content:        "hello everyone",
	})
	require.NoError(t, err)
	require.NoError(t, client.Write(ctx, websocket.MessageText, frame))

	// One speaker, no continuation: typing, response, all_finished.
	var kinds []types.EventKind
	for {
		_, data, err := client.Read(ctx)
		require.NoError(t, err)
		var event types.Event
		require.NoError(t, json.Unmarshal(data, &event))
		kinds = append(kinds, event.Kind)
		if event.Kind == types.EventAllFinished {
			break
		}
		if event.Kind == types.EventResponse {
			assert.Equal(t, "echo response", event.Content)
			assert.Equal(t, "p1", event.PersonaID)
		}
	}
	assert.Equal(t, []types.EventKind{types.EventTyping, types.EventResponse, types.EventAllFinished}, kinds)

	// The turn landed in the persisted aggregate.
	require.Eventually(t, func() bool {
		stored, err := f.store.Load(context.Background(), conv.ID)
		return err == nil && len(stored.History) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestUserMessageForUnknownConversationEmitsError(t *testing.T) {
	f := newServiceFixture(t)
	// No session is attached, so the error event is dropped by the hub;
	// the call must still be a no-op rather than a panic.
	f.svc.OnUserMessage(context.Background(), "no-such-id", types.NewUserMessage("hi"))
	assert.Equal(t, 0, f.registry.Len())
}
