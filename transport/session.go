// Package transport adapts the orchestration core's event stream to a
// WebSocket client. The core stays transport-agnostic: it emits typed
// events and consumes typed playback acks; this package owns the framing.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/types"
)

// InboundKind identifies a client frame.
type InboundKind string

const (
	// InboundUserMessage carries a new user message for a conversation.
	InboundUserMessage InboundKind = "user_message"
	// InboundPlaybackAck confirms playback completion of an audio segment.
	InboundPlaybackAck InboundKind = "playback_ack"
)

// InboundFrame is the envelope for client-to-server frames.
type InboundFrame struct {
	Kind           InboundKind            `json:"kind"`
	ConversationID string                 `json:"conversation_id"`
	MessageID      string                 `json:"message_id,omitempty"`
	Content        string                 `json:"content,omitempty"`
	Image          *types.ImageAttachment `json:"image,omitempty"`
}

// Handler consumes decoded inbound frames.
type Handler interface {
	// OnUserMessage handles a new user message.
	OnUserMessage(ctx context.Context, conversationID string, msg types.Message)
	// OnPlaybackAck handles an audio playback acknowledgment.
	OnPlaybackAck(ack types.PlaybackAck)
}

// Session is one client WebSocket connection. Writes are serialized
// behind a mutex; the WebSocket protocol does not allow concurrent
// writers.
type Session struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewSession wraps an accepted WebSocket connection.
func NewSession(conn *websocket.Conn, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		conn:         conn,
		logger:       logger.With(zap.String("component", "ws_session")),
		writeTimeout: 10 * time.Second,
	}
}

// Emit sends one event frame to the client. Safe for concurrent use.
func (s *Session) Emit(event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ReadLoop decodes inbound frames and dispatches them to the handler
// until the connection drops or ctx is cancelled. Malformed frames are
// logged and skipped; one bad client frame must not kill the session.
func (s *Session) ReadLoop(ctx context.Context, handler Handler) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("discarding malformed inbound frame", zap.Error(err))
			continue
		}

		switch frame.Kind {
		case InboundUserMessage:
			if frame.Content == "" {
				s.logger.Warn("discarding empty user message",
					zap.String("conversation_id", frame.ConversationID))
				continue
			}
			msg := types.NewUserMessage(frame.Content)
			if frame.Image != nil {
				msg = msg.WithImage(frame.Image)
			}
			handler.OnUserMessage(ctx, frame.ConversationID, msg)
		case InboundPlaybackAck:
			handler.OnPlaybackAck(types.PlaybackAck{
				ConversationID: frame.ConversationID,
				MessageID:      frame.MessageID,
			})
		default:
			s.logger.Warn("discarding frame of unknown kind",
				zap.String("kind", string(frame.Kind)))
		}
	}
}

// Close closes the connection with a normal-closure status.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}
