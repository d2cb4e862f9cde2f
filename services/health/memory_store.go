package health

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	stats     BucketStats
	expiresAt time.Time
}

// MemoryStore keeps health state in process. Writes sweep expired buckets
// and breaker flags at most once per BucketSize, so retention stays bounded
// by the bucket TTL.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*memoryBucket
	breakers  map[string]time.Time
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a store that reads time from now
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		buckets:  make(map[string]*memoryBucket),
		breakers: make(map[string]time.Time),
		now:      now,
	}
}

// Record increments the bucket counters and appends the latency sample
func (s *MemoryStore) Record(_ context.Context, variantID string, bucket int64, latencyMs int64, isError bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= BucketSize {
		s.sweep(now)
	}

	key := bucketKey(variantID, bucket)
	b, ok := s.buckets[key]
	if !ok || !now.Before(b.expiresAt) {
		b = &memoryBucket{}
		s.buckets[key] = b
	}

	b.stats.Requests++
	if isError {
		b.stats.Errors++
	}
	b.stats.LatenciesMs = append(b.stats.LatenciesMs, latencyMs)
	b.expiresAt = now.Add(ttl)
	return nil
}

// sweep drops every expired entry. Callers hold mu.
func (s *MemoryStore) sweep(now time.Time) {
	for key, b := range s.buckets {
		if !now.Before(b.expiresAt) {
			delete(s.buckets, key)
		}
	}
	for key, until := range s.breakers {
		if !now.Before(until) {
			delete(s.breakers, key)
		}
	}
	s.lastSweep = now
}

// Buckets returns a copy of the requested buckets; missing ones are zero
func (s *MemoryStore) Buckets(_ context.Context, variantID string, buckets []int64) ([]BucketStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]BucketStats, len(buckets))
	for i, bucket := range buckets {
		key := bucketKey(variantID, bucket)
		b, ok := s.buckets[key]
		if !ok {
			continue
		}
		if !now.Before(b.expiresAt) {
			delete(s.buckets, key)
			continue
		}
		out[i] = BucketStats{
			Requests:    b.stats.Requests,
			Errors:      b.stats.Errors,
			LatenciesMs: append([]int64(nil), b.stats.LatenciesMs...),
		}
	}
	return out, nil
}

// IsOpen reports whether the breaker flag is set and unexpired
func (s *MemoryStore) IsOpen(ctx context.Context, variantID string) (bool, error) {
	_, open, err := s.OpenUntil(ctx, variantID)
	return open, err
}

// Open sets or refreshes the breaker flag
func (s *MemoryStore) Open(_ context.Context, variantID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.breakers[breakerKey(variantID)] = s.now().Add(ttl)
	return nil
}

// OpenUntil returns when the breaker flag expires
func (s *MemoryStore) OpenUntil(_ context.Context, variantID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := breakerKey(variantID)
	until, ok := s.breakers[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if !s.now().Before(until) {
		delete(s.breakers, key)
		return time.Time{}, false, nil
	}
	return until, true, nil
}
