package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OpenAIConfig configures the OpenAI-compatible chat provider.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// OpenAIProvider speaks the OpenAI chat-completions wire format, which most
// inference gateways accept.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "openai_provider")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      openAIMessage `json:"message"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	wire := openAIRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, openAIMessage{
			Role:    string(m.Role),
			Name:    m.Name,
			Content: m.Content,
		})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &Error{Code: ErrInvalidRequest, Message: "marshal request", Cause: err}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: ErrInvalidRequest, Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: ErrUpstreamTimeout, Message: "request timed out", Provider: p.Name(), Cause: err}
		}
		return nil, &Error{Code: ErrProviderUnavailable, Message: "request failed", Provider: p.Name(), Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: ErrUpstreamError, Message: "read response", Provider: p.Name(), Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, data)
	}

	var out openAIResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &Error{Code: ErrUpstreamError, Message: "decode response", Provider: p.Name(), Cause: err}
	}
	if len(out.Choices) == 0 {
		return nil, &Error{Code: ErrUpstreamError, Message: "empty choices", Provider: p.Name()}
	}

	return &GenerateResponse{
		Provider: p.Name(),
		Model:    out.Model,
		Text:     out.Choices[0].Message.Content,
		Tokens:   out.Usage.TotalTokens,
	}, nil
}

func (p *OpenAIProvider) mapHTTPError(status int, body []byte) *Error {
	var out openAIResponse
	msg := fmt.Sprintf("upstream status %d", status)
	if err := json.Unmarshal(body, &out); err == nil && out.Error != nil {
		msg = out.Error.Message
	}

	e := &Error{Message: msg, HTTPStatus: status, Provider: p.Name()}
	switch {
	case status == http.StatusTooManyRequests:
		e.Code = ErrRateLimited
		e.Retryable = true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = ErrUnauthorized
	case status == http.StatusBadRequest:
		e.Code = ErrInvalidRequest
	case status >= 500:
		e.Code = ErrUpstreamError
		e.Retryable = true
	default:
		e.Code = ErrUpstreamError
	}
	return e
}
