package types

import (
	"time"

	"github.com/google/uuid"
)

// SenderKind identifies who authored a message.
type SenderKind string

const (
	SenderUser    SenderKind = "user"
	SenderPersona SenderKind = "persona"
)

// ImageAttachment references an image uploaded alongside a message.
type ImageAttachment struct {
	URL      string `json:"url,omitempty" bson:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
}

// Message is a single entry in the conversation history.
// Messages are immutable once created and appended-only.
type Message struct {
	ID        string           `json:"id" bson:"id"`
	Sender    SenderKind       `json:"sender" bson:"sender"`
	PersonaID string           `json:"persona_id,omitempty" bson:"persona_id,omitempty"`
	Content   string           `json:"content" bson:"content"`
	Image     *ImageAttachment `json:"image,omitempty" bson:"image,omitempty"`
	Timestamp time.Time        `json:"timestamp" bson:"timestamp"`
}

// NewUserMessage creates a message authored by the user.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Sender:    SenderUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewPersonaMessage creates a message authored by the given persona.
func NewPersonaMessage(personaID, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Sender:    SenderPersona,
		PersonaID: personaID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// WithImage attaches an image to the message.
func (m Message) WithImage(img *ImageAttachment) Message {
	m.Image = img
	return m
}
