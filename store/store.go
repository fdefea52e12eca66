// Package store persists the Conversation aggregate. The orchestration
// core loads and saves at turn boundaries only; no sub-step touches
// storage.
package store

import (
	"context"

	"github.com/parley-ai/parley/types"
)

// ConversationStore is the session-store boundary.
type ConversationStore interface {
	// Load fetches a conversation by id. Returns a NOT_FOUND types.Error
	// when no such conversation exists.
	Load(ctx context.Context, id string) (*types.Conversation, error)
	// Save upserts the full aggregate.
	Save(ctx context.Context, conv *types.Conversation) error
	// Delete removes a conversation. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// ListByUser returns the user's conversations, most recently active
	// first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*types.Conversation, error)
}
