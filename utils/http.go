package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes returned in API error bodies
const (
	CodeAuthInvalid           = "AUTH_INVALID"
	CodeRateLimited           = "RATE_LIMITED"
	CodeProviderTimeout       = "PROVIDER_TIMEOUT"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeCapabilityUnsupported = "CAPABILITY_UNSUPPORTED"
	CodeBadRequest            = "BAD_REQUEST"
	CodeNotFound              = "NOT_FOUND"
	CodeInternal              = "INTERNAL_ERROR"
)

// ProviderErrorInfo describes the upstream failure behind an error
type ProviderErrorInfo struct {
	Name       string `json:"name,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	RawMessage string `json:"raw_message,omitempty"`
}

// APIError is the body of every error response
type APIError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Provider  *ProviderErrorInfo     `json:"provider,omitempty"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteError writes an error body with the given status
func WriteError(w http.ResponseWriter, status int, apiErr APIError) error {
	return WriteJSON(w, status, ErrorResponse{Error: apiErr})
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, requestID, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, APIError{
		Code:      CodeBadRequest,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	})
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, requestID, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	return WriteError(w, http.StatusUnauthorized, APIError{
		Code:      CodeAuthInvalid,
		Message:   message,
		RequestID: requestID,
	})
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, requestID, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return WriteError(w, http.StatusNotFound, APIError{
		Code:      CodeNotFound,
		Message:   message,
		RequestID: requestID,
	})
}

// WriteInternalServerError writes a 500 response with a generic message
func WriteInternalServerError(w http.ResponseWriter, requestID, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteError(w, http.StatusInternalServerError, APIError{
		Code:      CodeInternal,
		Message:   message,
		RequestID: requestID,
	})
}

// SSEWriter writes server-sent events and flushes after each one
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the event-stream headers and writes the 200 status
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

// WriteEvent writes one `event:`/`data:` frame
func (s *SSEWriter) WriteEvent(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
