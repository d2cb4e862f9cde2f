package health

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
)

const (
	// BucketSize is the width of one counter bucket
	BucketSize = 60 * time.Second
	// BucketTTL is how long a bucket is retained
	BucketTTL = 600 * time.Second
	// DefaultWindowMinutes is the snapshot window when none is given
	DefaultWindowMinutes = 5

	defaultCooldown = 60 * time.Second
)

// View statuses
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusDown     = "down"
	StatusUnknown  = "unknown"
)

// Snapshot is the aggregated health of a variant over a window
type Snapshot struct {
	Requests     int64   `json:"requests"`
	Errors       int64   `json:"errors"`
	ErrorRate    float64 `json:"error_rate"`
	P95LatencyMs int64   `json:"p95_latency_ms"`
	Multiplier   float64 `json:"multiplier"`
	CircuitOpen  bool    `json:"circuit_open"`
}

// View is the caller-facing health summary of a variant
type View struct {
	Status        string     `json:"status"`
	Score         float64    `json:"score"`
	ErrorRate     float64    `json:"error_rate"`
	P95LatencyMs  int64      `json:"p95_latency_ms"`
	CooldownUntil *time.Time `json:"cooldown_until"`
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces the wall clock used for bucketing
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker records request outcomes and computes snapshots from a Store
type Tracker struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a tracker backed by store
func NewTracker(store Store, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordSuccess counts a successful request
func (t *Tracker) RecordSuccess(ctx context.Context, variantID string, latencyMs int64) error {
	return t.record(ctx, variantID, latencyMs, false)
}

// RecordFailure counts a failed request
func (t *Tracker) RecordFailure(ctx context.Context, variantID string, latencyMs int64) error {
	return t.record(ctx, variantID, latencyMs, true)
}

func (t *Tracker) record(ctx context.Context, variantID string, latencyMs int64, isError bool) error {
	return t.store.Record(ctx, variantID, t.currentBucket(), latencyMs, isError, BucketTTL)
}

func (t *Tracker) currentBucket() int64 {
	return t.now().Unix() / int64(BucketSize/time.Second)
}

// Snapshot aggregates the last windowMinutes buckets and applies the
// variant's health policy. It may open the breaker as a side effect.
func (t *Tracker) Snapshot(ctx context.Context, variantID string, policy models.HealthPolicy, windowMinutes int) (Snapshot, error) {
	if windowMinutes <= 0 {
		windowMinutes = DefaultWindowMinutes
	}

	current := t.currentBucket()
	buckets := make([]int64, windowMinutes)
	for i := range buckets {
		buckets[i] = current - int64(i)
	}

	stats, err := t.store.Buckets(ctx, variantID, buckets)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	var latencies []int64
	for _, b := range stats {
		snap.Requests += b.Requests
		snap.Errors += b.Errors
		latencies = append(latencies, b.LatenciesMs...)
	}
	if snap.Requests > 0 {
		snap.ErrorRate = float64(snap.Errors) / float64(snap.Requests)
	}
	snap.P95LatencyMs = percentile(latencies, 0.95)
	snap.Multiplier = 1

	if !policy.Enabled {
		return snap, nil
	}

	wasOpen, err := t.store.IsOpen(ctx, variantID)
	if err != nil {
		return Snapshot{}, err
	}

	cb := policy.CircuitBreaker
	shouldOpen := snap.Requests > 0 &&
		snap.Requests >= int64(cb.MinRequests) &&
		snap.ErrorRate >= cb.FailureRateThreshold
	if shouldOpen {
		cooldown := time.Duration(cb.CooldownSeconds) * time.Second
		if cooldown <= 0 {
			cooldown = defaultCooldown
		}
		if err := t.store.Open(ctx, variantID, cooldown); err != nil {
			return Snapshot{}, err
		}
		if !wasOpen {
			t.logger.Warn("circuit opened",
				zap.String("variant_id", variantID),
				zap.Int64("requests", snap.Requests),
				zap.Float64("error_rate", snap.ErrorRate),
				zap.Duration("cooldown", cooldown),
			)
		}
	}
	snap.CircuitOpen = wasOpen || shouldOpen

	penalties := policy.Penalties
	if float64(snap.P95LatencyMs) > penalties.P95LatencyMs.Threshold {
		snap.Multiplier *= penalties.P95LatencyMs.Multiplier
	}
	if snap.ErrorRate > penalties.ErrorRate.Threshold {
		snap.Multiplier *= penalties.ErrorRate.Multiplier
	}

	return snap, nil
}

// View summarizes variant health for display. Store failures yield an unknown view.
func (t *Tracker) View(ctx context.Context, variantID string, policy models.HealthPolicy, windowMinutes int) View {
	unknown := View{Status: StatusUnknown}

	snap, err := t.Snapshot(ctx, variantID, policy, windowMinutes)
	if err != nil {
		t.logger.Debug("health view unavailable", zap.String("variant_id", variantID), zap.Error(err))
		return unknown
	}
	if snap.Requests == 0 {
		return unknown
	}

	until, open, err := t.store.OpenUntil(ctx, variantID)
	if err != nil {
		t.logger.Debug("health view unavailable", zap.String("variant_id", variantID), zap.Error(err))
		return unknown
	}

	view := View{
		Status:       StatusHealthy,
		ErrorRate:    snap.ErrorRate,
		P95LatencyMs: snap.P95LatencyMs,
	}
	if open && !until.IsZero() {
		view.CooldownUntil = &until
	}

	switch {
	case open || snap.ErrorRate >= 0.3:
		view.Status = StatusDown
	case snap.ErrorRate >= 0.1 || snap.P95LatencyMs >= 1500:
		view.Status = StatusDegraded
	}

	latencyScore := 1 / (1 + float64(snap.P95LatencyMs)/1000)
	reliabilityScore := 1 - snap.ErrorRate
	view.Score = math.Max(0, math.Min(1, reliabilityScore*0.7+latencyScore*0.3))

	return view
}

// percentile returns the nearest-rank value of p over samples, 0 when empty
func percentile(samples []int64, p float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
