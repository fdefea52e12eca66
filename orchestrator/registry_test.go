package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/types"
)

type memorySaver struct {
	mu    sync.Mutex
	saved []string
}

func (m *memorySaver) Save(_ context.Context, conv *types.Conversation) error {
	m.mu.Lock()
	m.saved = append(m.saved, conv.ID)
	m.mu.Unlock()
	return nil
}

func (m *memorySaver) savedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.saved))
	copy(out, m.saved)
	return out
}

func testRegistry(saver Saver) *Registry {
	return NewRegistry(RegistryConfig{
		InactivityTimeout: 10 * time.Minute,
		GracePeriod:       5 * time.Minute,
		SweepInterval:     time.Minute,
	}, saver, zap.NewNop())
}

func TestRegistryAddGet(t *testing.T) {
	t.Parallel()
	r := testRegistry(nil)
	conv := types.NewConversation("u1", nil, 20)
	r.Add(conv)

	got, ok := r.Get(conv.ID)
	require.True(t, ok)
	assert.Same(t, conv, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestSweepExpiresIdleConversations(t *testing.T) {
	t.Parallel()
	saver := &memorySaver{}
	r := testRegistry(saver)
	conv := types.NewConversation("u1", nil, 20)
	r.Add(conv)

	// Idle past the timeout but inside the grace period: expired, hidden
	// from Get, persisted, still registered.
	r.Sweep(context.Background(), conv.LastActivityAt.Add(12*time.Minute))
	_, ok := r.Get(conv.ID)
	assert.False(t, ok, "expired conversations are not served")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{conv.ID}, saver.savedIDs())
}

func TestSweepEvictsAfterGracePeriod(t *testing.T) {
	t.Parallel()
	saver := &memorySaver{}
	r := testRegistry(saver)
	conv := types.NewConversation("u1", nil, 20)
	r.Add(conv)

	r.Sweep(context.Background(), conv.LastActivityAt.Add(16*time.Minute))
	assert.Zero(t, r.Len())
	assert.Equal(t, []string{conv.ID}, saver.savedIDs())
}

func TestSweepRevivesActiveConversation(t *testing.T) {
	t.Parallel()
	r := testRegistry(nil)
	conv := types.NewConversation("u1", nil, 20)
	r.Add(conv)

	r.Sweep(context.Background(), conv.LastActivityAt.Add(12*time.Minute))
	_, ok := r.Get(conv.ID)
	require.False(t, ok)

	// New activity before eviction brings it back on the next sweep.
	conv.Touch()
	r.Sweep(context.Background(), conv.LastActivityAt.Add(time.Minute))
	_, ok = r.Get(conv.ID)
	assert.True(t, ok)
}

func TestRunTeardownPersistsEverything(t *testing.T) {
	t.Parallel()
	saver := &memorySaver{}
	r := testRegistry(saver)
	r.Add(types.NewConversation("u1", nil, 20))
	r.Add(types.NewConversation("u2", nil, 20))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("registry did not shut down")
	}
	assert.Len(t, saver.savedIDs(), 2)
	assert.Zero(t, r.Len())
}
