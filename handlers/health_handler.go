package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/utils"
)

// readinessTimeout bounds all dependency checks of one readiness probe
const readinessTimeout = 2 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Providers []string          `json:"providers,omitempty"`
}

// Checker probes one dependency
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker
type CheckFunc func(ctx context.Context) error

// Check calls f
func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseCheck pings the database and runs a trivial query
func DatabaseCheck(db *sql.DB) Checker {
	return CheckFunc(func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var result int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	})
}

// RedisCheck pings the redis server
func RedisCheck(client redis.UniversalClient) Checker {
	return CheckFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// ProviderLister reports registered provider names
type ProviderLister interface {
	ListProviders() []string
}

// HealthHandler handles liveness and readiness probes
type HealthHandler struct {
	checks    map[string]Checker
	providers ProviderLister
	logger    *zap.Logger
	now       func() time.Time
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are ignored.
func NewHealthHandler(checks map[string]Checker, providers ProviderLister, logger *zap.Logger) *HealthHandler {
	active := make(map[string]Checker, len(checks))
	for name, c := range checks {
		if c != nil {
			active[name] = c
		}
	}
	return &HealthHandler{
		checks:    active,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleHealth handles GET /healthz.
// It returns 200 whenever the process is serving.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "ready",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(h.checks)+1),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name].Check(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			response.Checks[name] = "unhealthy"
			response.Status = "not_ready"
			continue
		}
		response.Checks[name] = "healthy"
	}

	if h.providers != nil {
		response.Providers = h.providers.ListProviders()
		if len(response.Providers) == 0 {
			response.Checks["providers"] = "none_configured"
			response.Status = "not_ready"
		} else {
			response.Checks["providers"] = "configured"
		}
	}

	status := http.StatusOK
	if response.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	if err := utils.WriteJSON(w, status, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
