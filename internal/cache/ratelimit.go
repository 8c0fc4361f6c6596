package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitIPPrefix = "ratelimit:ip:"
	rateLimitIPTTL    = 10 * time.Second
)

// RateLimitResult is the outcome of one bucket check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a bucket atomically. Times are in
// milliseconds so sub-second refills are not lost.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now

	local elapsed = math.max(0, now - ts) / 1000
	tokens = math.min(burst, tokens + elapsed * rate)

	local allowed = 0
	local wait = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		wait = math.ceil((1 - tokens) / rate * 1000)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, wait, math.floor(tokens)}
`)

// AllowIP consumes one token from ip's bucket. The raw address is never
// stored. On a Redis failure the request is allowed and the error returned.
func (c *Cache) AllowIP(ctx context.Context, ip string, ratePerSecond, burst int) (RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	key := rateLimitIPPrefix + hashKey(ip)
	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		ratePerSecond, burst, time.Now().UnixMilli(), int(rateLimitIPTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return RateLimitResult{Allowed: true, Remaining: int64(burst)}, fmt.Errorf("rate limit script: %w", err)
	}

	return RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
	}, nil
}

// hashKey shortens a SHA-256 of s to 16 hex characters.
func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
