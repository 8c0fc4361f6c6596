package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const visitorKeyPrefix = "visitor:"

// VisitorStore remembers stable identity tokens.
type VisitorStore struct {
	cache *Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewVisitorStore returns a store that forgets a visitor after ttl without
// a visit.
func NewVisitorStore(c *Cache, ttl time.Duration) *VisitorStore {
	return &VisitorStore{cache: c, ttl: ttl, now: time.Now}
}

// Touch records a sighting and reports whether the token was seen before.
func (s *VisitorStore) Touch(ctx context.Context, stableID string) (bool, error) {
	key := visitorKeyPrefix + stableID
	now := s.now().UTC().Format(time.RFC3339)

	var visits *redis.IntCmd
	_, err := s.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		visits = pipe.HIncrBy(ctx, key, "visits", 1)
		pipe.HSetNX(ctx, key, "first_seen", now)
		pipe.HSet(ctx, key, "last_seen", now)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to touch visitor: %w", err)
	}
	return visits.Val() > 1, nil
}

// Visits returns how many times stableID has been seen.
func (s *VisitorStore) Visits(ctx context.Context, stableID string) (int64, error) {
	n, err := s.cache.client.HGet(ctx, visitorKeyPrefix+stableID, "visits").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read visitor: %w", err)
	}
	return n, nil
}
