package types

// VoiceSettings are the conversation-level audio preferences.
type VoiceSettings struct {
	Enabled bool `json:"enabled" bson:"enabled"`
	// PersonaVoices overrides the voice per persona id. Personas without
	// an entry keep their declared default voice.
	PersonaVoices map[string]string `json:"persona_voices,omitempty" bson:"persona_voices,omitempty"`
	Language      string            `json:"language,omitempty" bson:"language,omitempty"`
	Style         string            `json:"style,omitempty" bson:"style,omitempty"`
}
