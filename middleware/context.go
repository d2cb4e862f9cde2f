package middleware

import (
	"context"

	"github.com/upb/llm-gateway/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// AuthKey is the context key for the resolved API key
	AuthKey contextKey = "auth"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetAuthFromContext retrieves the caller identity from context
func GetAuthFromContext(ctx context.Context) (models.AuthContext, bool) {
	auth, ok := ctx.Value(AuthKey).(models.AuthContext)
	return auth, ok
}

// WithAuth adds the caller identity to the context
func WithAuth(ctx context.Context, auth models.AuthContext) context.Context {
	return context.WithValue(ctx, AuthKey, auth)
}
