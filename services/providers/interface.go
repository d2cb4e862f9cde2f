package providers

import (
	"context"
	"errors"
	"time"
)

// Provider is the adapter contract every backend implements
type Provider interface {
	// Name returns the provider name used by catalog variants (e.g. "openai", "mock")
	Name() string

	// Generate performs a single non-streaming generation against providerModel
	Generate(ctx context.Context, req *Request, requestID, providerModel string) (*Result, error)

	// Stream starts a streaming generation. Errors returned here happen
	// before any event was produced.
	Stream(ctx context.Context, req *Request, requestID, providerModel string) (EventStream, error)
}

// EventStream is a pull iterator over streaming events.
//
//	for s.Next() {
//		ev := s.Current()
//	}
//	if err := s.Err(); err != nil { ... }
//	res := s.Result()
//
// Result is only meaningful once Next returned false and Err is nil.
type EventStream interface {
	Next() bool
	Current() Event
	Err() error
	Close() error
	Result() *Result
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for requests
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns the default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}

// Provider error codes
const (
	CodeCapabilityUnsupported = "CAPABILITY_UNSUPPORTED"
	CodeTimeout               = "PROVIDER_TIMEOUT"
	CodeHTTPError             = "HTTP_ERROR"
	CodeMissingAPIKey         = "MISSING_API_KEY"
	CodeUpstreamError         = "UPSTREAM_ERROR"
	CodeStreamIncomplete      = "STREAM_INCOMPLETE"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the upstream HTTP status code, 0 when there was none
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// NewCapabilityUnsupportedError reports that a provider cannot serve the request shape
func NewCapabilityUnsupportedError(provider, message string) *ProviderError {
	return NewProviderError(provider, CodeCapabilityUnsupported, message, 0, true, nil)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// IsCapabilityUnsupported reports whether err is a capability mismatch
func IsCapabilityUnsupported(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code == CodeCapabilityUnsupported
	}
	return false
}

// StatusCodeOf returns the upstream HTTP status carried by err, or 0
func StatusCodeOf(err error) int {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode
	}
	return 0
}
