// Package app wires configuration into a running visit pipeline. The
// server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/sajpe/visitgate/internal/cache"
	"github.com/sajpe/visitgate/internal/config"
	"github.com/sajpe/visitgate/internal/identity"
	"github.com/sajpe/visitgate/internal/location"
	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/network"
	"github.com/sajpe/visitgate/internal/pipeline"
	"github.com/sajpe/visitgate/internal/redirect"
	"github.com/sajpe/visitgate/internal/report"
	"github.com/sajpe/visitgate/internal/repository"
)

// Options adjusts wiring for the calling binary.
type Options struct {
	// SelfLookup lets IP providers locate the caller when the visitor IP
	// is unknown. Only the CLI runs on the visitor's network.
	SelfLookup bool
}

// App holds every long-lived component built from a Config.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Recorder metrics.Recorder

	// Repo and Cache are nil when their URL is not configured.
	Repo  *repository.Repository
	Cache *cache.Cache

	Router   *redirect.Router
	Race     redirect.VisibilityRace
	Reporter *report.Reporter
	Pipeline *pipeline.Orchestrator

	// Worker is nil unless Postgres and Redis are both configured and the
	// worker is enabled.
	Worker *report.Worker
}

// New builds an App. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder, opts Options) (*App, error) {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	a := &App{Config: cfg, Logger: logger, Recorder: recorder}

	if cfg.DatabaseURL != "" {
		repo, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %s", SanitizeError(err, cfg.DatabaseURL))
		}
		a.Repo = repo
		logger.Info("connected to database", "database_url", RedactURL(cfg.DatabaseURL))
	}

	if cfg.RedisURL != "" {
		c, err := cache.New(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to Redis: %s", SanitizeError(err, cfg.RedisURL))
		}
		a.Cache = c
		logger.Info("connected to Redis", "redis_url", RedactURL(cfg.RedisURL))
	}

	locationResolver, err := a.newLocationResolver(opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	var visitors identity.VisitorStore
	if a.Cache != nil {
		visitors = cache.NewVisitorStore(a.Cache, cfg.IdentityTTL)
	}
	identityEngine := identity.NewEngine(cfg.IdentitySalt, visitors, cfg.IdentityTimeout, logger)

	// The echo service answers with the caller's address, which is the
	// visitor only when this process runs on the visitor's network.
	var echo network.Resolver
	if opts.SelfLookup {
		echo = network.NewEchoClient(cfg.IPEchoURL, network.NewHTTPClient(cfg.IPEchoTimeout), cfg.IPEchoTimeout, logger)
	}

	a.Reporter = report.NewReporter(a.sinks(), cfg.ReportTimeout, logger, recorder)

	a.Router = redirect.NewRouter(Destinations(cfg), redirect.TabletPolicy(cfg.TabletPolicy))
	a.Race = redirect.VisibilityRace{Delay: cfg.FallbackDelay, MaxElapsed: cfg.FallbackMaxElapsed}
	a.Pipeline = pipeline.New(identityEngine, echo, locationResolver, a.Reporter, a.Router, logger, recorder)

	if a.Repo != nil && a.Cache != nil && cfg.WorkerEnabled {
		a.Worker = report.NewWorker(
			a.Cache.Client(),
			repository.NewVisitRepository(a.Repo),
			report.DefaultWorkerConfig(),
			report.NewConsumerID(),
			logger,
			recorder,
		)
	}

	return a, nil
}

func (a *App) newLocationResolver(opts Options) (*location.Resolver, error) {
	cfg := a.Config
	client := network.NewHTTPClient(cfg.ProviderTimeout)

	providers := make([]location.Provider, 0, len(cfg.GeoProviders))
	for _, name := range cfg.GeoProviders {
		p, err := location.NewProvider(strings.TrimSpace(name), "", client)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	geocoder := location.NewNominatim(cfg.NominatimURL, cfg.GeocoderAgent, cfg.GeocoderReferer, network.NewHTTPClient(cfg.GeocodeTimeout))

	r := location.NewResolver(location.Config{
		GPSTimeout:      cfg.GPSTimeout,
		GeocodeTimeout:  cfg.GeocodeTimeout,
		ProviderTimeout: cfg.ProviderTimeout,
		AllowSelfLookup: opts.SelfLookup,
	}, geocoder, providers, a.Logger, a.Recorder)

	if a.Cache != nil {
		r.WithCache(cache.NewLocationStore(a.Cache, cfg.LocationCacheTTL))
	}
	return r, nil
}

func (a *App) sinks() []report.Sink {
	var sinks []report.Sink
	if a.Config.CollectorURL != "" {
		sinks = append(sinks, report.NewCollector(a.Config.CollectorURL, network.NewHTTPClient(a.Config.ReportTimeout)))
	}
	if a.Cache != nil {
		sinks = append(sinks, report.NewPublisher(a.Cache.Client()))
	}
	return sinks
}

// Destinations maps configuration onto redirect destinations.
func Destinations(cfg *config.Config) redirect.Destinations {
	return redirect.Destinations{
		MainPortal:      cfg.MainPortalURL,
		BusinessPortal:  cfg.BusinessPortalURL,
		MainStore:       cfg.MainStoreURL,
		BusinessStore:   cfg.BusinessStoreURL,
		CommunityStore:  cfg.CommunityStoreURL,
		MainScheme:      cfg.MainScheme,
		BusinessScheme:  cfg.BusinessScheme,
		CommunityScheme: cfg.CommunityScheme,
	}
}

// Shutdown drains in-flight reports and stops the worker.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Worker != nil {
		if err := a.Worker.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker: %w", err))
		}
	}
	if a.Reporter != nil {
		if err := a.Reporter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reporter: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases store connections.
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Repo != nil {
		a.Repo.Close()
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// RedactURL strips the password from a connection URL.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// SanitizeError replaces secrets in err's message with redacted forms.
func SanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := RedactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
