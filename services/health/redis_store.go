package health

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldRequests = "requests"
	fieldErrors   = "errors"
)

// RedisStore shares health state across gateway instances
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisStore creates a store on top of an existing redis client
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Record increments the bucket hash and appends the latency in one pipeline
func (s *RedisStore) Record(ctx context.Context, variantID string, bucket int64, latencyMs int64, isError bool, ttl time.Duration) error {
	key := bucketKey(variantID, bucket)
	lkey := latencyKey(variantID, bucket)

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, key, fieldRequests, 1)
	if isError {
		pipe.HIncrBy(ctx, key, fieldErrors, 1)
	}
	pipe.RPush(ctx, lkey, latencyMs)
	pipe.Expire(ctx, key, ttl)
	pipe.Expire(ctx, lkey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record health sample: %w", err)
	}
	return nil
}

// Buckets reads counters and latency lists for all buckets in one pipeline
func (s *RedisStore) Buckets(ctx context.Context, variantID string, buckets []int64) ([]BucketStats, error) {
	pipe := s.client.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, len(buckets))
	lists := make([]*redis.StringSliceCmd, len(buckets))
	for i, bucket := range buckets {
		hashes[i] = pipe.HGetAll(ctx, bucketKey(variantID, bucket))
		lists[i] = pipe.LRange(ctx, latencyKey(variantID, bucket), 0, -1)
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read health buckets: %w", err)
	}

	out := make([]BucketStats, len(buckets))
	for i := range buckets {
		hash := hashes[i].Val()
		out[i].Requests = parseCount(hash[fieldRequests])
		out[i].Errors = parseCount(hash[fieldErrors])

		for _, entry := range lists[i].Val() {
			latency, err := strconv.ParseFloat(entry, 64)
			if err != nil {
				continue
			}
			out[i].LatenciesMs = append(out[i].LatenciesMs, int64(latency))
		}
	}
	return out, nil
}

func parseCount(value string) int64 {
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// IsOpen reports whether the breaker key exists
func (s *RedisStore) IsOpen(ctx context.Context, variantID string) (bool, error) {
	n, err := s.client.Exists(ctx, breakerKey(variantID)).Result()
	if err != nil {
		return false, fmt.Errorf("read breaker: %w", err)
	}
	return n == 1, nil
}

// Open sets the breaker key with the cooldown as expiry
func (s *RedisStore) Open(ctx context.Context, variantID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, breakerKey(variantID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("open breaker: %w", err)
	}
	return nil
}

// OpenUntil derives the breaker expiry from its remaining TTL
func (s *RedisStore) OpenUntil(ctx context.Context, variantID string) (time.Time, bool, error) {
	ttl, err := s.client.PTTL(ctx, breakerKey(variantID)).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read breaker ttl: %w", err)
	}

	switch {
	case ttl == -2:
		return time.Time{}, false, nil
	case ttl == -1:
		// set without expiry
		return time.Time{}, true, nil
	case ttl <= 0:
		return time.Time{}, false, nil
	}
	return s.now().Add(ttl), true, nil
}
