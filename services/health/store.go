// Package health tracks per-variant request outcomes in minute buckets and
// runs the circuit breaker used by routing.
package health

import (
	"context"
	"fmt"
	"time"
)

// BucketStats holds the counters of one minute bucket
type BucketStats struct {
	Requests    int64
	Errors      int64
	LatenciesMs []int64
}

// Store is the storage backend of the tracker: counters, a latency list and
// a breaker flag with an expiry. Implementations must be safe for concurrent use.
type Store interface {
	Record(ctx context.Context, variantID string, bucket int64, latencyMs int64, isError bool, ttl time.Duration) error
	Buckets(ctx context.Context, variantID string, buckets []int64) ([]BucketStats, error)
	IsOpen(ctx context.Context, variantID string) (bool, error)
	Open(ctx context.Context, variantID string, ttl time.Duration) error
	OpenUntil(ctx context.Context, variantID string) (time.Time, bool, error)
}

func bucketKey(variantID string, bucket int64) string {
	return fmt.Sprintf("health:%s:%d", variantID, bucket)
}

func latencyKey(variantID string, bucket int64) string {
	return bucketKey(variantID, bucket) + ":latency"
}

func breakerKey(variantID string) string {
	return "health:cb:" + variantID
}
