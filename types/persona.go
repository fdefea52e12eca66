package types

// Persona is a configured AI participant in a conversation.
type Persona struct {
	ID           string   `json:"id" bson:"id"`
	Name         string   `json:"name" bson:"name"`
	Role         string   `json:"role" bson:"role"`
	Expertise    []string `json:"expertise,omitempty" bson:"expertise,omitempty"`
	SystemPrompt string   `json:"system_prompt" bson:"system_prompt"`
	DefaultVoice string   `json:"default_voice,omitempty" bson:"default_voice,omitempty"`
	Language     string   `json:"language,omitempty" bson:"language,omitempty"`
	Model        string   `json:"model,omitempty" bson:"model,omitempty"`
}

// FindPersona returns the persona with the given id, or false.
func FindPersona(personas []Persona, id string) (Persona, bool) {
	for _, p := range personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// PersonaIDs returns the ids of the given personas, in order.
func PersonaIDs(personas []Persona) []string {
	ids := make([]string, 0, len(personas))
	for _, p := range personas {
		ids = append(ids, p.ID)
	}
	return ids
}
