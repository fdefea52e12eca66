// Package audio serializes speech-segment delivery per conversation.
// Synthesis latency varies per persona, so without ack-gated pacing the
// nth segment could reach the client before the (n-1)th and play out of
// order against the text.
package audio

import (
	"sync"

	"go.uber.org/zap"

	"github.com/parley-ai/parley/types"
)

// Item is one synthesized segment awaiting delivery.
type Item struct {
	ConversationID string
	MessageID      string
	PersonaID      string
	Payload        types.AudioPayload
}

// DeliveryFunc pushes one segment to the client transport. An error means
// the segment is lost; the queue advances rather than stalling. It runs
// outside the queue lock, so a slow write never blocks other
// conversations.
type DeliveryFunc func(item Item) error

// Queue gates audio delivery on playback acknowledgments. Per
// conversation, at most one item is in flight; the next is released only
// when the client acks the in-flight item's message id. Only the
// deliver/acknowledge pair mutates in-flight state.
type Queue struct {
	deliver DeliveryFunc
	logger  *zap.Logger

	mu       sync.Mutex
	pending  map[string][]Item // conversation id -> queued items, head first
	inFlight map[string]string // conversation id -> in-flight message id
}

// New creates an audio delivery queue.
func New(deliver DeliveryFunc, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		deliver:  deliver,
		logger:   logger.With(zap.String("component", "audio_queue")),
		pending:  make(map[string][]Item),
		inFlight: make(map[string]string),
	}
}

// Enqueue adds a segment. When nothing is in flight for the conversation
// the segment is delivered immediately, so the first segment of a turn
// reaches the client without queueing latency.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	q.pending[item.ConversationID] = append(q.pending[item.ConversationID], item)
	q.mu.Unlock()
	q.advance(item.ConversationID)
}

// Acknowledge handles a playback-completion ack. An ack whose message id
// does not match the in-flight item is logged and ignored; stale or
// duplicate acks after a client retry must not skip segments.
func (q *Queue) Acknowledge(ack types.PlaybackAck) {
	q.mu.Lock()
	current, ok := q.inFlight[ack.ConversationID]
	if !ok || current != ack.MessageID {
		q.mu.Unlock()
		q.logger.Debug("ignoring stale audio ack",
			zap.String("conversation_id", ack.ConversationID),
			zap.String("acked_message_id", ack.MessageID),
			zap.String("in_flight_message_id", current),
		)
		return
	}
	delete(q.inFlight, ack.ConversationID)
	q.mu.Unlock()

	q.advance(ack.ConversationID)
}

// Drop discards all queued segments and in-flight state for a
// conversation. Used at teardown.
func (q *Queue) Drop(conversationID string) {
	q.mu.Lock()
	delete(q.pending, conversationID)
	delete(q.inFlight, conversationID)
	q.mu.Unlock()
}

// Depth reports queued (not in-flight) segments for a conversation.
func (q *Queue) Depth(conversationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[conversationID])
}

// advance delivers head items until one is in flight or the queue is
// empty. The head is claimed under the lock (setting in-flight keeps
// concurrent callers out for this conversation), but the delivery itself
// runs unlocked so one conversation's slow client cannot stall the rest.
// A delivery failure clears in-flight and moves on; a stalled queue is
// worse than a dropped segment.
func (q *Queue) advance(conversationID string) {
	for {
		q.mu.Lock()
		if _, busy := q.inFlight[conversationID]; busy {
			q.mu.Unlock()
			return
		}
		items := q.pending[conversationID]
		if len(items) == 0 {
			delete(q.pending, conversationID)
			q.mu.Unlock()
			return
		}
		head := items[0]
		if len(items) == 1 {
			delete(q.pending, conversationID)
		} else {
			q.pending[conversationID] = items[1:]
		}
		q.inFlight[conversationID] = head.MessageID
		q.mu.Unlock()

		err := q.deliver(head)
		if err == nil {
			return
		}
		q.logger.Warn("audio delivery failed, advancing",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", head.MessageID),
			zap.Error(err),
		)

		// Clear our claim only if it is still ours; an ack (even a racy
		// one) may already have advanced past it.
		q.mu.Lock()
		if q.inFlight[conversationID] == head.MessageID {
			delete(q.inFlight, conversationID)
		}
		q.mu.Unlock()
	}
}
