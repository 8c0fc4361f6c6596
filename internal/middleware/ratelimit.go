package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/sajpe/visitgate/internal/cache"
	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/network"
)

// IPLimiter consumes one request from an address's budget.
type IPLimiter interface {
	AllowIP(ctx context.Context, ip string, ratePerSecond, burst int) (cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Enabled bool
	RPS     int
	Burst   int

	Limiter  IPLimiter
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// RateLimitIP limits requests per client IP. Limiter errors let the
// request through.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := network.ClientIP(r)

			result, err := cfg.Limiter.AllowIP(r.Context(), ip, cfg.RPS, cfg.Burst)
			if err != nil {
				cfg.Logger.Error("IP rate limit check failed", slog.String("error", err.Error()))
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(result.Remaining, 0), 10))

			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(math.Ceil(result.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			cfg.Logger.Warn("rate limit exceeded",
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.Int("retry_after_seconds", retry),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			cfg.Recorder.IncRateLimited()

			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("rate limit exceeded, retry after %d seconds", retry))
		})
	}
}
