package location

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/network"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(f float64) *float64 { return &f }

// callLog records provider invocations in order.
type callLog struct {
	mu    sync.Mutex
	names []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

type stubProvider struct {
	name  string
	loc   model.LocationResult
	err   error
	panic bool
	log   *callLog
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Lookup(_ context.Context, _ string) (model.LocationResult, error) {
	if s.log != nil {
		s.log.add(s.name)
	}
	if s.panic {
		panic("provider exploded")
	}
	return s.loc, s.err
}

func okProvider(name, city string, log *callLog) *stubProvider {
	return &stubProvider{
		name: name,
		log:  log,
		loc: model.LocationResult{
			Latitude: ptr(19.07), Longitude: ptr(72.87),
			City: city, State: "Maharashtra", Country: "India", PostalCode: "400001",
			FullAddress: city + ", Maharashtra, India",
		},
	}
}

func failProvider(name string, log *callLog) *stubProvider {
	return &stubProvider{name: name, log: log, err: &ProviderError{Provider: name, Err: ErrProviderFailed}}
}

type stubGeolocator struct {
	state     PermissionState
	fix       Position
	fixErr    error
	block     bool
	positions int
}

func (g *stubGeolocator) Permission(context.Context) (PermissionState, error) {
	return g.state, nil
}

func (g *stubGeolocator) CurrentPosition(ctx context.Context) (Position, error) {
	g.positions++
	if g.block {
		<-ctx.Done()
		return Position{}, ctx.Err()
	}
	return g.fix, g.fixErr
}

type stubGeocoder struct {
	addr Address
	err  error
}

func (s stubGeocoder) Reverse(context.Context, float64, float64) (Address, error) {
	return s.addr, s.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]model.LocationResult
}

func (m *mapCache) GetLocation(_ context.Context, ip string) (model.LocationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.data[ip]
	if !ok {
		return model.LocationResult{}, errors.New("miss")
	}
	return loc, nil
}

func (m *mapCache) SetLocation(_ context.Context, ip string, loc model.LocationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[ip] = loc
	return nil
}

func fastConfig() Config {
	return Config{GPSTimeout: 50 * time.Millisecond, GeocodeTimeout: time.Second, ProviderTimeout: time.Second}
}

func TestResolver_ChainStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	rec := metrics.NewInMemory()
	providers := []Provider{
		failProvider("first", log),
		failProvider("second", log),
		okProvider("third", "Mumbai", log),
		okProvider("fourth", "Pune", log),
	}
	r := NewResolver(fastConfig(), nil, providers, testLogger(), rec)

	loc := r.FromIP(context.Background(), "203.0.113.9")

	assert.Equal(t, []string{"first", "second", "third"}, log.names)
	assert.Equal(t, "Mumbai", loc.City)
	assert.Equal(t, model.SourceIP, loc.Source)
	assert.Equal(t, model.AccuracyMedium, loc.Accuracy)
	assert.True(t, loc.Consistent())

	snap := rec.Snapshot()
	assert.Equal(t, uint64(1), snap.ProviderAttempts["first/failed"])
	assert.Equal(t, uint64(1), snap.ProviderAttempts["third/success"])
	assert.Equal(t, uint64(1), snap.LocationSources["ip"])
}

func TestResolver_AllProvidersFail(t *testing.T) {
	t.Parallel()

	providers := []Provider{
		&stubProvider{name: "a", err: &ProviderError{Provider: "a", Err: ErrMalformedPayload}},
		&stubProvider{name: "b", panic: true},
		&stubProvider{name: "c", loc: model.LocationResult{City: "NoCoords"}},
	}
	r := NewResolver(fastConfig(), nil, providers, testLogger(), nil)

	var loc model.LocationResult
	require.NotPanics(t, func() {
		loc = r.FromIP(context.Background(), "203.0.113.9")
	})

	assert.Equal(t, Placeholder(), loc)
	assert.Equal(t, "Unknown", loc.City)
	assert.Equal(t, model.AccuracyLow, loc.Accuracy)
	assert.Equal(t, model.SourceNone, loc.Source)
	assert.Nil(t, loc.Latitude)
	assert.Nil(t, loc.Longitude)
}

func TestResolver_PermissionNotGrantedSkipsPosition(t *testing.T) {
	t.Parallel()

	for _, state := range []PermissionState{PermissionPrompt, PermissionDenied, PermissionUnsupported} {
		geo := &stubGeolocator{state: state, fix: Position{Latitude: 1, Longitude: 1}}
		r := NewResolver(fastConfig(), stubGeocoder{}, []Provider{okProvider("p", "Delhi", nil)}, testLogger(), nil)

		loc := r.Resolve(context.Background(), geo, "203.0.113.9")

		assert.Zero(t, geo.positions, "state %s must not request a fix", state)
		assert.Equal(t, model.SourceIP, loc.Source)
	}
}

func TestResolver_GPSTier(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	geo := &stubGeolocator{state: PermissionGranted, fix: Position{Latitude: 28.6139, Longitude: 77.209, Accuracy: 12}}
	geocoder := stubGeocoder{addr: Address{City: "New Delhi", State: "Delhi", Country: "India", FullAddress: "Connaught Place, New Delhi"}}
	r := NewResolver(fastConfig(), geocoder, []Provider{okProvider("p", "Mumbai", log)}, testLogger(), nil)

	loc := r.Resolve(context.Background(), geo, "203.0.113.9")

	require.NotNil(t, loc.Latitude)
	require.NotNil(t, loc.Longitude)
	assert.Equal(t, 28.6139, *loc.Latitude)
	assert.Equal(t, 77.209, *loc.Longitude)
	assert.Equal(t, "New Delhi", loc.City)
	assert.Equal(t, "Unknown", loc.PostalCode)
	assert.Equal(t, model.AccuracyHigh, loc.Accuracy)
	assert.Equal(t, model.SourceGPS, loc.Source)
	assert.Empty(t, log.names, "ip tier must not run after gps success")
}

func TestResolver_GPSFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		geo      *stubGeolocator
		geocoder ReverseGeocoder
	}{
		{"fix timeout", &stubGeolocator{state: PermissionGranted, block: true}, stubGeocoder{}},
		{"fix error", &stubGeolocator{state: PermissionGranted, fixErr: errors.New("position unavailable")}, stubGeocoder{}},
		{"fix out of range", &stubGeolocator{state: PermissionGranted, fix: Position{Latitude: 123, Longitude: 0}}, stubGeocoder{}},
		{"geocode fails", &stubGeolocator{state: PermissionGranted, fix: Position{Latitude: 1, Longitude: 1}}, stubGeocoder{err: errors.New("503")}},
		{"no geocoder", &stubGeolocator{state: PermissionGranted, fix: Position{Latitude: 1, Longitude: 1}}, nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewResolver(fastConfig(), tt.geocoder, []Provider{okProvider("p", "Jaipur", nil)}, testLogger(), nil)
			loc := r.Resolve(context.Background(), tt.geo, "203.0.113.9")

			assert.Equal(t, model.SourceIP, loc.Source)
			assert.Equal(t, "Jaipur", loc.City)
		})
	}
}

func TestResolver_UnknownIP(t *testing.T) {
	t.Parallel()

	t.Run("server mode skips providers", func(t *testing.T) {
		t.Parallel()
		log := &callLog{}
		r := NewResolver(fastConfig(), nil, []Provider{okProvider("p", "Goa", log)}, testLogger(), nil)

		loc := r.FromIP(context.Background(), network.UnknownIP)

		assert.Equal(t, model.SourceNone, loc.Source)
		assert.Empty(t, log.names)
	})

	t.Run("ip source fills the gap", func(t *testing.T) {
		t.Parallel()
		r := NewResolver(fastConfig(), nil, []Provider{okProvider("p", "Goa", nil)}, testLogger(), nil).
			WithIPSource(network.Static("198.51.100.20"))

		loc := r.FromIP(context.Background(), "")
		assert.Equal(t, "Goa", loc.City)
	})

	t.Run("self lookup", func(t *testing.T) {
		t.Parallel()
		cfg := fastConfig()
		cfg.AllowSelfLookup = true
		r := NewResolver(cfg, nil, []Provider{okProvider("p", "Goa", nil)}, testLogger(), nil)

		loc := r.FromIP(context.Background(), network.UnknownIP)
		assert.Equal(t, model.SourceIP, loc.Source)
	})
}

func TestResolver_Cache(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	cache := &mapCache{data: map[string]model.LocationResult{}}
	rec := metrics.NewInMemory()
	r := NewResolver(fastConfig(), nil, []Provider{okProvider("p", "Kochi", log)}, testLogger(), rec).WithCache(cache)

	first := r.FromIP(context.Background(), "203.0.113.50")
	second := r.FromIP(context.Background(), "203.0.113.50")

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"p"}, log.names)
	assert.Equal(t, uint64(1), rec.Snapshot().LocationCacheHits)
}

func TestParsePermission(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PermissionGranted, ParsePermission(" Granted "))
	assert.Equal(t, PermissionDenied, ParsePermission("denied"))
	assert.Equal(t, PermissionPrompt, ParsePermission(""))
	assert.Equal(t, PermissionPrompt, ParsePermission("maybe"))
}

func TestClientGeolocator(t *testing.T) {
	t.Parallel()

	var empty ClientGeolocator
	state, err := empty.Permission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionPrompt, state)

	_, err = empty.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, ErrNoFix)

	fix := &Position{Latitude: 12.97, Longitude: 77.59}
	pos, err := ClientGeolocator{State: PermissionGranted, Fix: fix}.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, *fix, pos)
}
