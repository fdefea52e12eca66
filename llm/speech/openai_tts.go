package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OpenAITTSConfig configures the OpenAI-compatible TTS provider.
type OpenAITTSConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model,omitempty" json:"model,omitempty"` // tts-1, tts-1-hd
	Voice   string        `yaml:"voice,omitempty" json:"voice,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// RequestsPerSecond paces synthesis calls; multiple personas can finish
	// generating at once and TTS endpoints throttle aggressively.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
}

// OpenAITTSProvider implements TTS against an OpenAI-compatible endpoint.
type OpenAITTSProvider struct {
	cfg     OpenAITTSConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAITTSProvider creates an OpenAI-compatible TTS provider.
func NewOpenAITTSProvider(cfg OpenAITTSConfig) *OpenAITTSProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1-hd"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &OpenAITTSProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (p *OpenAITTSProvider) Name() string { return "openai-tts" }

type openAITTSRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// wordsPerSecond approximates spoken-English pace for duration estimation.
const wordsPerSecond = 2.5

// Synthesize converts text to speech.
func (p *OpenAITTSProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	voice := req.VoiceID
	if voice == "" {
		voice = p.cfg.Voice
	}

	body := openAITTSRequest{
		Model:          p.cfg.Model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: "mp3",
	}
	if req.Speed > 0 {
		body.Speed = req.Speed
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/audio/speech",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}

	return &SynthesizeResponse{
		Provider:  p.Name(),
		Audio:     audio,
		Format:    "mp3",
		Duration:  EstimateDuration(req.Text, req.Speed),
		VoiceID:   voice,
		CreatedAt: time.Now(),
	}, nil
}

// EstimateDuration approximates playback length from word count and speed.
func EstimateDuration(text string, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(strings.Fields(text))
	seconds := float64(words) / (wordsPerSecond * speed)
	return time.Duration(seconds * float64(time.Second))
}
