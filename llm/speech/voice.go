package speech

import "github.com/parley-ai/parley/types"

// VoiceDefaults maps a language code to its system default voice.
type VoiceDefaults struct {
	ByLanguage map[string]string
	Fallback   string
}

// ResolveVoice picks the voice for a persona's spoken response.
// Precedence: per-persona override, then the persona's declared default
// voice, then the language-aware system default.
func ResolveVoice(settings types.VoiceSettings, persona types.Persona, defaults VoiceDefaults) string {
	if v := settings.PersonaVoices[persona.ID]; v != "" {
		return v
	}
	if persona.DefaultVoice != "" {
		return persona.DefaultVoice
	}

	lang := settings.Language
	if lang == "" {
		lang = persona.Language
	}
	if v, ok := defaults.ByLanguage[lang]; ok && v != "" {
		return v
	}
	return defaults.Fallback
}
