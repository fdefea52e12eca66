package types

import "time"

// EventKind is the fixed vocabulary of outbound client events.
// Client implementations are built against this contract; do not add
// ad hoc shapes.
type EventKind string

const (
	EventTyping      EventKind = "typing"
	EventResponse    EventKind = "response"
	EventAudio       EventKind = "audio"
	EventAudioError  EventKind = "audio_error"
	EventAllFinished EventKind = "all_finished"
	EventError       EventKind = "error"
)

// AudioPayload carries one synthesized speech segment.
type AudioPayload struct {
	Data     []byte        `json:"data,omitempty"`
	Format   string        `json:"format,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	VoiceID  string        `json:"voice_id,omitempty"`
}

// Event is a single outbound frame delivered to the client transport.
type Event struct {
	Kind           EventKind     `json:"kind"`
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id,omitempty"`
	PersonaID      string        `json:"persona_id,omitempty"`
	Content        string        `json:"content,omitempty"`
	Audio          *AudioPayload `json:"audio,omitempty"`
	ResponseCount  int           `json:"response_count,omitempty"`
	Error          string        `json:"error,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// PlaybackAck is the single inbound event type the core consumes: the
// client confirming playback completion of an audio segment.
type PlaybackAck struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}
