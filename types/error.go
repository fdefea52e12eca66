package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

const (
	ErrValidation   ErrorCode = "VALIDATION"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrRateLimited  ErrorCode = "RATE_LIMITED"
	ErrUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrTimeout      ErrorCode = "TIMEOUT"
	ErrParseFailed  ErrorCode = "PARSE_FAILED"
	ErrSynthesis    ErrorCode = "SYNTHESIS_FAILED"
	ErrStore        ErrorCode = "STORE_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrConversation ErrorCode = "CONVERSATION_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Field      string    `json:"field,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewValidationError creates a field-tagged validation error.
func NewValidationError(field, message string) *Error {
	return &Error{Code: ErrValidation, Field: field, Message: message, HTTPStatus: 400}
}

// NewNotFoundError creates a typed not-found error.
func NewNotFoundError(what, id string) *Error {
	return &Error{
		Code:       ErrNotFound,
		Message:    fmt.Sprintf("%s not found: %s", what, id),
		HTTPStatus: 404,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
