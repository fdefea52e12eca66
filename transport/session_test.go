package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/types"
)

// capturingHandler records dispatched frames.
type capturingHandler struct {
	mu       sync.Mutex
	messages []types.Message
	acks     []types.PlaybackAck
}

func (h *capturingHandler) OnUserMessage(_ context.Context, _ string, msg types.Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
}

func (h *capturingHandler) OnPlaybackAck(ack types.PlaybackAck) {
	h.mu.Lock()
	h.acks = append(h.acks, ack)
	h.mu.Unlock()
}

func (h *capturingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages), len(h.acks)
}

// sessionPair accepts one server-side session and returns it with the
// client connection.
func sessionPair(t *testing.T) (*Session, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(websocket.StatusNormalClosure, "done") })

	select {
	case server := <-accepted:
		sess := NewSession(server, nil)
		t.Cleanup(func() { _ = sess.Close() })
		return sess, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func TestEmitDeliversEventFrame(t *testing.T) {
	sess, client := sessionPair(t)

	event := types.Event{
		Kind:           types.EventResponse,
		ConversationID: "c1",
		MessageID:      "m1",
		PersonaID:      "p1",
		Content:        "hello from Ada",
		Timestamp:      time.Now(),
	}
	require.NoError(t, sess.Emit(event))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := client.Read(ctx)
	require.NoError(t, err)

	var got types.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, types.EventResponse, got.Kind)
	assert.Equal(t, "c1", got.ConversationID)
	assert.Equal(t, "hello from Ada", got.Content)
}

func TestReadLoopDispatchesFrames(t *testing.T) {
	sess, client := sessionPair(t)
	handler := &capturingHandler{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = sess.ReadLoop(ctx, handler) }()

	write := func(frame InboundFrame) {
		data, err := json.Marshal(frame)
		require.NoError(t, err)
		require.NoError(t, client.Write(ctx, websocket.MessageText, data))
	}

	write(InboundFrame{Kind: InboundUserMessage, ConversationID: "c1", Content: "hi all"})
	write(InboundFrame{Kind: InboundPlaybackAck, ConversationID: "c1", MessageID: "m1"})
	// Noise the loop must survive.
	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte("not json")))
	write(InboundFrame{Kind: "unknown_kind", ConversationID: "c1"})
	write(InboundFrame{Kind: InboundUserMessage, ConversationID: "c1"}) // empty content
	write(InboundFrame{Kind: InboundPlaybackAck, ConversationID: "c1", MessageID: "m2"})

	require.Eventually(t, func() bool {
		msgs, acks := handler.counts()
		return msgs == 1 && acks == 2
	}, 3*time.Second, 10*time.Millisecond)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, "hi all", handler.messages[0].Content)
	assert.Equal(t, "m2", handler.acks[1].MessageID)
}

func TestEmitAfterClose(t *testing.T) {
	sess, _ := sessionPair(t)
	require.NoError(t, sess.Close())
	assert.Error(t, sess.Emit(types.Event{Kind: types.EventTyping}))
}
