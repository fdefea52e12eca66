package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/types"
)

// countingStore counts Load calls on top of a MemoryStore.
type countingStore struct {
	*MemoryStore
	loads int
}

func (c *countingStore) Load(ctx context.Context, id string) (*types.Conversation, error) {
	c.loads++
	return c.MemoryStore.Load(ctx, id)
}

func newCachedStore(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cfg := DefaultCacheConfig()
	cfg.Addr = mr.Addr()
	s, err := NewCachedStore(context.Background(), inner, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, inner
}

func TestCachedStoreReadThrough(t *testing.T) {
	t.Parallel()
	s, inner := newCachedStore(t)
	ctx := context.Background()

	conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
	require.NoError(t, s.Save(ctx, conv))

	// Save populated the cache; loads never reach the backing store.
	for i := 0; i < 3; i++ {
		got, err := s.Load(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, got.ID)
	}
	assert.Zero(t, inner.loads)
}

func TestCachedStoreMissRepopulates(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cfg := DefaultCacheConfig()
	cfg.Addr = mr.Addr()
	s, err := NewCachedStore(context.Background(), inner, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	conv := types.NewConversation("u1", nil, 20)
	require.NoError(t, inner.Save(ctx, conv)) // bypass the cache

	_, err = s.Load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.loads)

	_, err = s.Load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.loads, "second load must come from the cache")
}

func TestCachedStoreDeleteInvalidates(t *testing.T) {
	t.Parallel()
	s, _ := newCachedStore(t)
	ctx := context.Background()

	conv := types.NewConversation("u1", nil, 20)
	require.NoError(t, s.Save(ctx, conv))
	require.NoError(t, s.Delete(ctx, conv.ID))

	_, err := s.Load(ctx, conv.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestCachedStoreMissingConversation(t *testing.T) {
	t.Parallel()
	s, _ := newCachedStore(t)
	_, err := s.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}
