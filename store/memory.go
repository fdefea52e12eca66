package store

import (
	"context"
	"sort"
	"sync"

	"github.com/parley-ai/parley/types"
)

// MemoryStore is an in-process ConversationStore for development and
// tests. Aggregates are deep-copied through JSON-free struct copies on
// the way in and out so callers cannot alias stored state.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*types.Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*types.Conversation)}
}

// Load fetches a conversation by id.
func (s *MemoryStore) Load(_ context.Context, id string) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, types.NewNotFoundError("conversation", id)
	}
	return copyConversation(conv), nil
}

// Save upserts the aggregate.
func (s *MemoryStore) Save(_ context.Context, conv *types.Conversation) error {
	s.mu.Lock()
	s.convs[conv.ID] = copyConversation(conv)
	s.mu.Unlock()
	return nil
}

// Delete removes a conversation. Missing ids are not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.convs, id)
	s.mu.Unlock()
	return nil
}

// ListByUser returns the user's conversations, most recently active first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*types.Conversation, error) {
	s.mu.RLock()
	var convs []*types.Conversation
	for _, c := range s.convs {
		if c.UserID == userID {
			convs = append(convs, copyConversation(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
	})
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// Len reports how many conversations are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

func copyConversation(c *types.Conversation) *types.Conversation {
	out := *c
	out.Personas = append([]types.Persona(nil), c.Personas...)
	out.History = append([]types.Message(nil), c.History...)
	out.Files = append([]types.FileContext(nil), c.Files...)
	out.PersonaContexts = make(map[string][]types.Message, len(c.PersonaContexts))
	for id, msgs := range c.PersonaContexts {
		out.PersonaContexts[id] = append([]types.Message(nil), msgs...)
	}
	return &out
}
