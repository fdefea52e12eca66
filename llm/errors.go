package llm

import (
	"errors"
	"strings"
)

// ErrorCode aligns provider failures with retryability and HTTP status.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
)

// Error is a structured provider failure.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// throttleSubstrings are message fragments known to indicate rate limiting
// across providers, checked case-insensitively.
var throttleSubstrings = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"throttl",
	"quota exceeded",
	"429",
}

// IsThrottling classifies an error as a transient throttling failure.
// Detection order: structured code, HTTP 429, then message substring.
// Everything else is a hard failure.
func IsThrottling(err error) bool {
	if err == nil {
		return false
	}

	var le *Error
	if errors.As(err, &le) {
		if le.Code == ErrRateLimited || le.Code == ErrQuotaExceeded {
			return true
		}
		if le.HTTPStatus == 429 {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range throttleSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
