package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/utils"
)

// apiKeyPrefixLen is how much of a key is kept as its sticky rollout prefix
const apiKeyPrefixLen = 6

// KeyResolver maps a presented API key to the caller identity
type KeyResolver interface {
	// ResolveKey returns ErrInvalidAPIKey for unknown keys
	ResolveKey(ctx context.Context, key string) (models.AuthContext, error)
}

// StaticKeyResolver resolves keys from a fixed table. Keys are held
// only as SHA-256 digests.
type StaticKeyResolver struct {
	keys map[string]models.AuthContext
}

// NewStaticKeyResolver builds a resolver from configured keys
func NewStaticKeyResolver(entries []config.APIKeyConfig) *StaticKeyResolver {
	keys := make(map[string]models.AuthContext, len(entries))
	for _, e := range entries {
		digest := hashKey(e.Key)
		keys[digest] = models.AuthContext{
			APIKeyID:     "key_" + digest[:12],
			TenantID:     e.TenantID,
			ProjectID:    e.ProjectID,
			APIKeyPrefix: KeyPrefix(e.Key),
			Tags:         append([]string(nil), e.Tags...),
		}
	}
	return &StaticKeyResolver{keys: keys}
}

// ResolveKey looks the key up by digest
func (r *StaticKeyResolver) ResolveKey(_ context.Context, key string) (models.AuthContext, error) {
	auth, ok := r.keys[hashKey(key)]
	if !ok {
		return models.AuthContext{}, services.ErrInvalidAPIKey
	}
	return auth, nil
}

// Len returns the number of configured keys
func (r *StaticKeyResolver) Len() int {
	return len(r.keys)
}

// KeyPrefix returns the first characters of a key
func KeyPrefix(key string) string {
	if len(key) <= apiKeyPrefixLen {
		return key
	}
	return key[:apiKeyPrefixLen]
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// AuthMiddleware provides API key authentication
type AuthMiddleware struct {
	resolver  KeyResolver
	anonymous *models.AuthContext
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(resolver KeyResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger,
	}
}

// AllowAnonymous lets requests without a key through as the given caller.
// Presented keys are still verified.
func (m *AuthMiddleware) AllowAnonymous(auth models.AuthContext) *AuthMiddleware {
	m.anonymous = &auth
	return m
}

// RequireAPIKey resolves the Bearer token or X-API-Key header into an
// AuthContext stored on the request context.
func (m *AuthMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		key := extractAPIKey(r)
		if key == "" {
			if m.anonymous != nil {
				next.ServeHTTP(w, r.WithContext(WithAuth(ctx, *m.anonymous)))
				return
			}
			m.logger.Warn("missing api key", zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, requestID, "Missing API key")
			return
		}

		auth, err := m.resolver.ResolveKey(ctx, key)
		if err != nil {
			if !errors.Is(err, services.ErrInvalidAPIKey) {
				m.logger.Error("api key lookup failed",
					zap.String("request_id", requestID),
					zap.Error(err))
			} else {
				m.logger.Warn("invalid api key",
					zap.String("request_id", requestID),
					zap.String("key_prefix", KeyPrefix(key)))
			}
			_ = utils.WriteUnauthorized(w, requestID, "Invalid API key")
			return
		}

		m.logger.Debug("api key resolved",
			zap.String("request_id", requestID),
			zap.String("api_key_id", auth.APIKeyID),
			zap.String("tenant_id", auth.TenantID))

		next.ServeHTTP(w, r.WithContext(WithAuth(ctx, auth)))
	})
}

// extractAPIKey reads "Authorization: Bearer <key>", falling back to X-API-Key
func extractAPIKey(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
