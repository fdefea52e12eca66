// Package config loads service configuration with the precedence
// defaults → YAML file → environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/parley-ai/parley/contextbudget"
	"github.com/parley-ai/parley/internal/telemetry"
	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/llm/queue"
	"github.com/parley-ai/parley/llm/speech"
	"github.com/parley-ai/parley/orchestrator"
	"github.com/parley-ai/parley/routing"
	"github.com/parley-ai/parley/store"
)

// Config is the complete service configuration tree. Component sections
// reuse the component packages' own config structs so defaults stay in
// one place.
type Config struct {
	Server       ServerConfig                `yaml:"server" env:"SERVER"`
	LLM          llm.OpenAIConfig            `yaml:"llm" env:"LLM"`
	Speech       SpeechConfig                `yaml:"speech" env:"SPEECH"`
	Queue        queue.Config                `yaml:"queue" env:"QUEUE"`
	Routing      routing.Config              `yaml:"routing" env:"ROUTING"`
	Budget       contextbudget.Config        `yaml:"budget" env:"BUDGET"`
	Orchestrator orchestrator.Config         `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Registry     orchestrator.RegistryConfig `yaml:"registry" env:"REGISTRY"`
	Mongo        store.MongoConfig           `yaml:"mongo" env:"MONGO"`
	Redis        RedisConfig                 `yaml:"redis" env:"REDIS"`
	Telemetry    telemetry.Config            `yaml:"telemetry" env:"TELEMETRY"`
	Log          LogConfig                   `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// SpeechConfig configures speech synthesis and the voice defaults.
type SpeechConfig struct {
	Enabled bool                   `yaml:"enabled" env:"ENABLED"`
	TTS     speech.OpenAITTSConfig `yaml:"tts" env:"TTS"`
	// VoicesByLanguage maps a language code to its default voice.
	VoicesByLanguage map[string]string `yaml:"voices_by_language" env:"-"`
	FallbackVoice    string            `yaml:"fallback_voice" env:"FALLBACK_VOICE"`
}

// RedisConfig enables and configures the Redis cache layer.
type RedisConfig struct {
	Enabled bool              `yaml:"enabled" env:"ENABLED"`
	Cache   store.CacheConfig `yaml:"cache" env:"CACHE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format           string `yaml:"format" env:"FORMAT"` // json, console
	EnableCaller     bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool   `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		LLM: llm.OpenAIConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o",
			Timeout: 60 * time.Second,
		},
		Speech: SpeechConfig{
			VoicesByLanguage: map[string]string{
				"en": "alloy",
				"es": "nova",
				"fr": "shimmer",
			},
			FallbackVoice: "alloy",
		},
		Queue:        queue.DefaultConfig(),
		Routing:      routing.DefaultConfig(),
		Budget:       contextbudget.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Registry:     orchestrator.DefaultRegistryConfig(),
		Mongo:        store.DefaultMongoConfig(),
		Redis: RedisConfig{
			Cache: store.DefaultCacheConfig(),
		},
		Telemetry: telemetry.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field constraints that the component defaults
// cannot enforce on their own.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Orchestrator.MaxIterations <= 0 {
		errs = append(errs, "orchestrator max_iterations must be positive")
	}
	if c.Queue.MaxConcurrent <= 0 {
		errs = append(errs, "queue max_concurrent must be positive")
	}
	if c.Speech.Enabled && c.Speech.TTS.APIKey == "" && c.LLM.APIKey == "" {
		errs = append(errs, "speech enabled but no API key configured")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// VoiceDefaults builds the speech voice-resolution defaults.
func (c *Config) VoiceDefaults() speech.VoiceDefaults {
	return speech.VoiceDefaults{
		ByLanguage: c.Speech.VoicesByLanguage,
		Fallback:   c.Speech.FallbackVoice,
	}
}
