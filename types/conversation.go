package types

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the root aggregate for one multi-persona session.
//
// History is the single source of truth for display. PersonaContexts holds
// each persona's isolated view: only user messages and that persona's own
// responses ever land there. Personas see each other's turns exclusively
// through the orchestrator's session-ephemeral enhanced history, which is
// never written back here.
type Conversation struct {
	ID              string               `json:"id" bson:"_id"`
	UserID          string               `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Title           string               `json:"title,omitempty" bson:"title,omitempty"`
	Personas        []Persona            `json:"personas" bson:"personas"`
	History         []Message            `json:"history" bson:"history"`
	PersonaContexts map[string][]Message `json:"persona_contexts" bson:"persona_contexts"`
	Turn            TurnFlow             `json:"turn" bson:"turn"`
	Voice           VoiceSettings        `json:"voice" bson:"voice"`
	Files           []FileContext        `json:"files,omitempty" bson:"files,omitempty"`
	CreatedAt       time.Time            `json:"created_at" bson:"created_at"`
	LastActivityAt  time.Time            `json:"last_activity_at" bson:"last_activity_at"`
}

// NewConversation creates a conversation with the given active personas.
func NewConversation(userID string, personas []Persona, maxAgentTurns int) *Conversation {
	now := time.Now()
	contexts := make(map[string][]Message, len(personas))
	for _, p := range personas {
		contexts[p.ID] = nil
	}
	return &Conversation{
		ID:              uuid.New().String(),
		UserID:          userID,
		Personas:        personas,
		PersonaContexts: contexts,
		Turn:            TurnFlow{MaxAgentTurns: maxAgentTurns},
		CreatedAt:       now,
		LastActivityAt:  now,
	}
}

// Persona returns the active persona with the given id.
func (c *Conversation) Persona(id string) (Persona, bool) {
	return FindPersona(c.Personas, id)
}

// HasPersona reports whether the persona is in the active set.
func (c *Conversation) HasPersona(id string) bool {
	_, ok := c.Persona(id)
	return ok
}

// AppendUserMessage appends a user message to the shared history and to
// every active persona's isolated context.
func (c *Conversation) AppendUserMessage(msg Message) {
	c.History = append(c.History, msg)
	for _, p := range c.Personas {
		c.PersonaContexts[p.ID] = append(c.PersonaContexts[p.ID], msg)
	}
	c.Touch()
}

// AppendPersonaResponse appends a persona response to the shared history
// and to that persona's own isolated context only.
func (c *Conversation) AppendPersonaResponse(msg Message) {
	c.History = append(c.History, msg)
	c.PersonaContexts[msg.PersonaID] = append(c.PersonaContexts[msg.PersonaID], msg)
	c.Touch()
}

// PersonaContext returns the persona's isolated context.
func (c *Conversation) PersonaContext(personaID string) []Message {
	return c.PersonaContexts[personaID]
}

// RecentHistory returns up to n of the latest shared-history messages.
func (c *Conversation) RecentHistory(n int) []Message {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// VisibleFiles returns the files the given persona may read,
// newest upload first.
func (c *Conversation) VisibleFiles(personaID string) []FileContext {
	var files []FileContext
	for _, f := range c.Files {
		if f.VisibleTo(personaID) {
			files = append(files, f)
		}
	}
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].UploadedAt.After(files[j-1].UploadedAt); j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
	return files
}

// Touch updates the last-activity timestamp.
func (c *Conversation) Touch() {
	c.LastActivityAt = time.Now()
}

// IdleFor reports how long the conversation has been inactive.
func (c *Conversation) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.LastActivityAt)
}
