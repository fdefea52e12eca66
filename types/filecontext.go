package types

import "time"

// FileChunk is one pre-chunked, token-counted slice of an uploaded file.
type FileChunk struct {
	Index      int    `json:"index" bson:"index"`
	Content    string `json:"content" bson:"content"`
	TokenCount int    `json:"token_count" bson:"token_count"`
}

// FileContext is an uploaded file visible to one persona or to all of them.
// Chunking and token counting happen in the upload pipeline; this package
// only carries the result.
type FileContext struct {
	ID         string      `json:"id" bson:"id"`
	Name       string      `json:"name" bson:"name"`
	PersonaID  string      `json:"persona_id,omitempty" bson:"persona_id,omitempty"` // empty = shared with every persona
	Chunks     []FileChunk `json:"chunks" bson:"chunks"`
	TokenCount int         `json:"token_count" bson:"token_count"`
	UploadedAt time.Time   `json:"uploaded_at" bson:"uploaded_at"`
}

// VisibleTo reports whether the file is visible to the given persona.
func (f FileContext) VisibleTo(personaID string) bool {
	return f.PersonaID == "" || f.PersonaID == personaID
}
