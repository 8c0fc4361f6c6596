package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sajpe/visitgate/internal/model"
)

const locationKeyPrefix = "geo:ip:"

// LocationStore caches IP geolocation results.
type LocationStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewLocationStore returns a store whose entries expire after ttl.
func NewLocationStore(c *Cache, ttl time.Duration) *LocationStore {
	return &LocationStore{cache: c, ttl: ttl}
}

// GetLocation returns ErrCacheMiss when ip has no entry.
func (s *LocationStore) GetLocation(ctx context.Context, ip string) (model.LocationResult, error) {
	raw, err := s.cache.client.Get(ctx, locationKeyPrefix+hashKey(ip)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.LocationResult{}, ErrCacheMiss
	}
	if err != nil {
		return model.LocationResult{}, fmt.Errorf("failed to get location: %w", err)
	}

	var loc model.LocationResult
	if err := json.Unmarshal(raw, &loc); err != nil {
		return model.LocationResult{}, fmt.Errorf("failed to decode cached location: %w", err)
	}
	return loc, nil
}

// SetLocation stores loc. Only IP-tier results are cached.
func (s *LocationStore) SetLocation(ctx context.Context, ip string, loc model.LocationResult) error {
	if loc.Source != model.SourceIP {
		return nil
	}
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}
	if err := s.cache.client.Set(ctx, locationKeyPrefix+hashKey(ip), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set location: %w", err)
	}
	return nil
}
