// Package speech defines the text-to-speech provider boundary and the
// voice-selection rules the orchestrator applies per persona.
package speech

import (
	"context"
	"time"
)

// SynthesizeRequest is one text-to-speech request.
type SynthesizeRequest struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id,omitempty"`
	Style    string  `json:"style,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// SynthesizeResponse carries the synthesized audio plus an estimated
// playback duration used for delivery pacing.
type SynthesizeResponse struct {
	Provider  string        `json:"provider"`
	Audio     []byte        `json:"-"`
	Format    string        `json:"format"`
	Duration  time.Duration `json:"duration"`
	VoiceID   string        `json:"voice_id"`
	CreatedAt time.Time     `json:"created_at"`
}

// Provider is the speech-synthesis service boundary.
type Provider interface {
	// Synthesize converts text to speech.
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// Name returns the provider name.
	Name() string
}
