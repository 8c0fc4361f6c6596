package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sajpe/visitgate/internal/middleware"
	"github.com/sajpe/visitgate/internal/network"
	"github.com/sajpe/visitgate/internal/redirect"
)

// RouterConfig wires handlers and middleware into a router.
type RouterConfig struct {
	Runner  Runner
	Race    redirect.VisibilityRace
	Health  *HealthHandler
	Metrics http.Handler

	RateLimit      middleware.RateLimitConfig
	Security       middleware.SecurityConfig
	MaxBodySize    int64
	AllowedOrigins []string

	// TrustedProxies may set forwarding headers. Nil trusts none.
	TrustedProxies *network.TrustedProxies

	Logger *slog.Logger
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	visits := NewVisitHandler(cfg.Runner, cfg.Race, cfg.Logger)
	visitsAPI := NewVisitsAPIHandler(cfg.Runner, cfg.Logger)
	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil, nil)
	}

	r := chi.NewRouter()

	r.Use(middleware.TrustProxies(cfg.TrustedProxies))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
	}

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))

		r.Get("/ip", ClientIP)
		r.With(middleware.RateLimitIP(cfg.RateLimit)).Post("/v1/visits", visitsAPI.Create)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(cfg.RateLimit))
		r.Use(middleware.ValidateReferral)
		r.Get("/", visits.Visit)
		r.Get("/{type}", visits.Visit)
		r.Get("/{type}/{action}", visits.Visit)
		r.Get("/{type}/{action}/{code}", visits.Visit)
		r.Get("/{type}/{action}/{code}/*", visits.Visit)
	})

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
