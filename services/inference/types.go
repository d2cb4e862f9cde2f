package inference

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/routing"
	"github.com/upb/llm-gateway/services/usage"
)

// Router ranks the variants that may serve a request
type Router interface {
	Route(ctx context.Context, req *providers.Request, rc routing.RouteContext) (*routing.Decision, error)
}

// ProviderLookup resolves adapters by provider name
type ProviderLookup interface {
	GetProvider(name string) (providers.Provider, error)
}

// HealthRecorder receives the outcome of every attempt
type HealthRecorder interface {
	RecordSuccess(ctx context.Context, variantID string, latencyMs int64) error
	RecordFailure(ctx context.Context, variantID string, latencyMs int64) error
}

// UsageSink persists billed usage
type UsageSink interface {
	RecordUsage(ctx context.Context, rec usage.UsageRecord) error
}

// Config tunes the attempt loop
type Config struct {
	// AttemptTimeout bounds one non-streaming attempt, or the wait for the
	// first event of a streaming attempt
	AttemptTimeout time.Duration

	// RateLimitBackoff is slept after a 429 before trying the next candidate
	RateLimitBackoff time.Duration
}

// DefaultConfig returns the default dispatch configuration
func DefaultConfig() Config {
	return Config{
		AttemptTimeout:   30 * time.Second,
		RateLimitBackoff: 200 * time.Millisecond,
	}
}

// outcome is what the loop does after a failed attempt
type outcome int

const (
	outcomeNext outcome = iota
	outcomeBackoff
	outcomeAbort
)

// classify maps an attempt failure to the next step of the loop.
// Capability mismatches, 5xx, missing status codes and timeouts move on;
// 429 moves on after a backoff; any other status aborts.
func classify(err error) outcome {
	if providers.IsCapabilityUnsupported(err) {
		return outcomeNext
	}
	status := providers.StatusCodeOf(err)
	switch {
	case status == http.StatusTooManyRequests:
		return outcomeBackoff
	case status == 0, status >= http.StatusInternalServerError:
		return outcomeNext
	default:
		return outcomeAbort
	}
}

// attempt carries one candidate through the loop
type attempt struct {
	candidate routing.Candidate
	provider  providers.Provider
	start     time.Time
}

func (a attempt) info() providers.ProviderInfo {
	return providers.ProviderInfo{
		Name:   a.candidate.Variant.Provider,
		Model:  a.candidate.Variant.ProviderModel,
		Region: a.candidate.Region,
	}
}

// failure remembers the last failed attempt for error reporting
type failure struct {
	err      error
	provider providers.ProviderInfo
}

func routeContext(req *providers.Request, auth models.AuthContext) routing.RouteContext {
	tags := append([]string(nil), auth.Tags...)
	tags = append(tags, req.Tags()...)
	return routing.RouteContext{
		TenantID:     auth.TenantID,
		ProjectID:    auth.ProjectID,
		APIKeyPrefix: auth.APIKeyPrefix,
		Tags:         tags,
	}
}

var errStreamIncomplete = errors.New("stream completed without response")
