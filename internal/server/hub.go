package server

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parley-ai/parley/audio"
	"github.com/parley-ai/parley/transport"
	"github.com/parley-ai/parley/types"
)

// Hub routes outbound events to the WebSocket session attached to each
// conversation. One session per conversation; a newer connection for the
// same conversation replaces the older one.
type Hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*transport.Session
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger.With(zap.String("component", "hub")),
		sessions: make(map[string]*transport.Session),
	}
}

// Register attaches a session to a conversation, displacing any previous
// session.
func (h *Hub) Register(conversationID string, s *transport.Session) {
	h.mu.Lock()
	prev := h.sessions[conversationID]
	h.sessions[conversationID] = s
	h.mu.Unlock()

	if prev != nil && prev != s {
		h.logger.Info("replacing existing session",
			zap.String("conversation_id", conversationID))
		_ = prev.Close()
	}
}

// Unregister detaches a session. A session only removes itself; a stale
// unregister from a displaced connection must not evict its replacement.
func (h *Hub) Unregister(conversationID string, s *transport.Session) {
	h.mu.Lock()
	if h.sessions[conversationID] == s {
		delete(h.sessions, conversationID)
	}
	h.mu.Unlock()
}

// Emit delivers one event to the conversation's session. Events for
// conversations with no attached client are dropped; the aggregate is the
// source of truth and a reconnecting client reloads from it.
func (h *Hub) Emit(event types.Event) error {
	h.mu.RLock()
	s := h.sessions[event.ConversationID]
	h.mu.RUnlock()

	if s == nil {
		h.logger.Debug("dropping event, no session attached",
			zap.String("conversation_id", event.ConversationID),
			zap.String("kind", string(event.Kind)),
		)
		return nil
	}
	return s.Emit(event)
}

// DeliverAudio adapts the hub to the audio queue's delivery function: one
// queued segment becomes one audio event frame.
func (h *Hub) DeliverAudio(item audio.Item) error {
	h.mu.RLock()
	s := h.sessions[item.ConversationID]
	h.mu.RUnlock()

	if s == nil {
		return fmt.Errorf("no session for conversation %s", item.ConversationID)
	}
	return s.Emit(types.Event{
		Kind:           types.EventAudio,
		ConversationID: item.ConversationID,
		MessageID:      item.MessageID,
		PersonaID:      item.PersonaID,
		Audio:          &item.Payload,
		Timestamp:      time.Now(),
	})
}
