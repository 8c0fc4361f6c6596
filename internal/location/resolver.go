package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/network"
)

// Config bounds each external step.
type Config struct {
	GPSTimeout      time.Duration
	GeocodeTimeout  time.Duration
	ProviderTimeout time.Duration

	// AllowSelfLookup lets providers locate the caller when the visitor IP
	// is unknown. Only meaningful when this process runs on the visitor's
	// own network, as the CLI does.
	AllowSelfLookup bool
}

// DefaultConfig returns the standard timeouts.
func DefaultConfig() Config {
	return Config{
		GPSTimeout:      10 * time.Second,
		GeocodeTimeout:  5 * time.Second,
		ProviderTimeout: 4 * time.Second,
	}
}

// Resolver runs the two-tier location algorithm.
type Resolver struct {
	cfg       Config
	geocoder  ReverseGeocoder
	providers []Provider
	ipSource  network.Resolver
	cache     Cache
	logger    *slog.Logger
	recorder  metrics.Recorder
}

// NewResolver creates a Resolver. providers are tried in slice order.
func NewResolver(cfg Config, geocoder ReverseGeocoder, providers []Provider, logger *slog.Logger, recorder metrics.Recorder) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Resolver{
		cfg:       cfg,
		geocoder:  geocoder,
		providers: providers,
		logger:    logger.With("component", "location"),
		recorder:  recorder,
	}
}

// WithCache enables caching of successful IP lookups.
func (r *Resolver) WithCache(c Cache) *Resolver {
	r.cache = c
	return r
}

// WithIPSource sets where an unknown visitor IP is looked up.
func (r *Resolver) WithIPSource(src network.Resolver) *Resolver {
	r.ipSource = src
	return r
}

// Resolve returns the visitor's location. It never fails: the worst case is
// Placeholder.
func (r *Resolver) Resolve(ctx context.Context, geo Geolocator, ip string) model.LocationResult {
	var loc model.LocationResult
	if geo != nil {
		var err error
		loc, err = r.fromGPS(ctx, geo)
		if err != nil {
			if errors.Is(err, ErrPermissionNotGranted) {
				r.logger.Debug("gps tier skipped", "reason", err)
			} else {
				r.logger.Info("gps tier failed, falling back to ip", "error", err)
			}
		}
	}
	if loc.Source != model.SourceGPS {
		loc = r.fromIP(ctx, ip)
	}

	r.recorder.IncLocationResolved(string(loc.Source))
	return loc
}

// FromIP runs only the IP tier.
func (r *Resolver) FromIP(ctx context.Context, ip string) model.LocationResult {
	loc := r.fromIP(ctx, ip)
	r.recorder.IncLocationResolved(string(loc.Source))
	return loc
}

func (r *Resolver) fromGPS(ctx context.Context, geo Geolocator) (model.LocationResult, error) {
	state, err := geo.Permission(ctx)
	if err != nil {
		return model.LocationResult{}, fmt.Errorf("%w: %v", ErrPermissionNotGranted, err)
	}
	if state != PermissionGranted {
		return model.LocationResult{}, fmt.Errorf("%w: %s", ErrPermissionNotGranted, state)
	}
	if r.geocoder == nil {
		return model.LocationResult{}, ErrNoGeocoder
	}

	fixCtx, cancel := context.WithTimeout(ctx, r.cfg.GPSTimeout)
	pos, err := geo.CurrentPosition(fixCtx)
	cancel()
	if err != nil {
		return model.LocationResult{}, fmt.Errorf("position fix: %w", err)
	}
	if !pos.valid() {
		return model.LocationResult{}, ErrInvalidFix
	}

	geoCtx, cancel := context.WithTimeout(ctx, r.cfg.GeocodeTimeout)
	addr, err := r.geocoder.Reverse(geoCtx, pos.Latitude, pos.Longitude)
	cancel()
	if err != nil {
		return model.LocationResult{}, err
	}

	lat, lon := pos.Latitude, pos.Longitude
	return model.LocationResult{
		Latitude:    &lat,
		Longitude:   &lon,
		City:        orUnknown(addr.City),
		State:       orUnknown(addr.State),
		Country:     orUnknown(addr.Country),
		PostalCode:  orUnknown(addr.PostalCode),
		FullAddress: orUnknown(addr.FullAddress),
		Accuracy:    model.AccuracyHigh,
		Source:      model.SourceGPS,
	}, nil
}

func (r *Resolver) fromIP(ctx context.Context, ip string) model.LocationResult {
	if !network.Known(ip) && r.ipSource != nil {
		ip = r.ipSource.ResolveIP(ctx)
	}
	if !network.Known(ip) {
		if !r.cfg.AllowSelfLookup {
			r.logger.Info("visitor ip unknown, skipping ip tier")
			return Placeholder()
		}
		ip = ""
	}

	if r.cache != nil && ip != "" {
		if loc, err := r.cache.GetLocation(ctx, ip); err == nil {
			r.recorder.IncLocationCacheHit()
			return loc
		}
	}

	for _, p := range r.providers {
		loc, err := r.attempt(ctx, p, ip)
		if err != nil {
			r.recorder.IncProviderAttempt(p.Name(), "failed")
			r.logger.Warn("geolocation provider failed", "provider", p.Name(), "error", err)
			continue
		}
		r.recorder.IncProviderAttempt(p.Name(), "success")

		if r.cache != nil && ip != "" {
			if err := r.cache.SetLocation(ctx, ip, loc); err != nil {
				r.logger.Warn("cache location failed", "error", err)
			}
		}
		return loc
	}

	r.logger.Warn("all geolocation providers failed", "providers", len(r.providers))
	return Placeholder()
}

// attempt runs one provider under its own deadline and contains panics.
func (r *Resolver) attempt(ctx context.Context, p Provider, ip string) (loc model.LocationResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = &ProviderError{Provider: p.Name(), Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	loc, err = p.Lookup(ctx, ip)
	if err != nil {
		return model.LocationResult{}, err
	}
	loc.Accuracy = model.AccuracyMedium
	loc.Source = model.SourceIP
	if loc.Latitude == nil || loc.Longitude == nil {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: ErrMalformedPayload}
	}
	return loc, nil
}
