package llm

import (
	"context"
	"time"
)

// Role represents the role of a chat message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one prompt message sent to the inference service.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// GenerateRequest is a synchronous text-generation request.
type GenerateRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ContentPart is one element of a provider's structured content array.
// Reasoning-capable models may return their JSON inside Reasoning rather
// than Text; the routing parser prefers Text when both are set.
type ContentPart struct {
	Type      string `json:"type,omitempty"`
	Text      string `json:"text,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// GenerateResponse is the provider's reply.
type GenerateResponse struct {
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model,omitempty"`
	Text     string        `json:"text"`
	Parts    []ContentPart `json:"parts,omitempty"`
	Tokens   int           `json:"tokens,omitempty"`
}

// Provider is the opaque inference service. It may fail with a
// distinguishable throttling error (see IsThrottling).
type Provider interface {
	// Generate performs a synchronous completion call.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Name returns the provider's unique identifier.
	Name() string
}
