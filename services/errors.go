package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeModelDisabled         ErrorType = "model_disabled"
	ErrorTypeNoCandidates          ErrorType = "no_candidates"
	ErrorTypeCapabilityUnsupported ErrorType = "capability_unsupported"
	ErrorTypeProviderUnavailable   ErrorType = "provider_unavailable"
	ErrorTypeProviderTimeout       ErrorType = "provider_timeout"
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeUnauthorized          ErrorType = "unauthorized"
	ErrorTypeRateLimit             ErrorType = "rate_limit"
	ErrorTypeInternal              ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables.
// These are matched with errors.Is; never mutate them, build a fresh error
// with NewDomainError when details are needed.

var (
	// Routing
	ErrModelNotFound = NewDomainError(ErrorTypeNotFound, "model not found", nil)
	ErrModelDisabled = NewDomainError(ErrorTypeModelDisabled, "model disabled", nil)
	ErrNoCandidates  = NewDomainError(ErrorTypeNoCandidates, "no eligible model variants", nil)

	// Dispatch
	ErrCapabilityUnsupported = NewDomainError(ErrorTypeCapabilityUnsupported, "capability not supported", nil)
	ErrProviderUnavailable   = NewDomainError(ErrorTypeProviderUnavailable, "all providers failed", nil)
	ErrProviderTimeout       = NewDomainError(ErrorTypeProviderTimeout, "provider timed out", nil)

	// Validation
	ErrInvalidInput   = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrModelRequired  = NewDomainError(ErrorTypeValidation, "model is required", nil)
	ErrInputRequired  = NewDomainError(ErrorTypeValidation, "input.messages or input.prompt is required", nil)
	ErrInvalidCatalog = NewDomainError(ErrorTypeValidation, "invalid catalog", nil)

	// Authorization
	ErrUnauthorized  = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidAPIKey = NewDomainError(ErrorTypeUnauthorized, "invalid API key", nil)

	// Internal
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
)

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsModelDisabledError checks if an error reports a disabled public model
func IsModelDisabledError(err error) bool {
	return hasType(err, ErrorTypeModelDisabled)
}

// IsNoCandidatesError checks if routing left no eligible variant
func IsNoCandidatesError(err error) bool {
	return hasType(err, ErrorTypeNoCandidates)
}

// IsCapabilityUnsupportedError checks if an error is a capability mismatch
func IsCapabilityUnsupportedError(err error) bool {
	return hasType(err, ErrorTypeCapabilityUnsupported)
}

// IsProviderUnavailableError checks if an error is a provider-unavailable error
func IsProviderUnavailableError(err error) bool {
	return hasType(err, ErrorTypeProviderUnavailable)
}

// IsProviderTimeoutError checks if an error is a provider timeout
func IsProviderTimeoutError(err error) bool {
	return hasType(err, ErrorTypeProviderTimeout)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapValidation wraps an error as a validation error
func WrapValidation(message string, err error) error {
	return NewDomainError(ErrorTypeValidation, message, err)
}
