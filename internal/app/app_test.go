package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajpe/visitgate/internal/config"
	"github.com/sajpe/visitgate/internal/identity"
	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/pipeline"
	"github.com/sajpe/visitgate/internal/redirect"
	"github.com/sajpe/visitgate/internal/report"
	"github.com/sajpe/visitgate/internal/testutil"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.DatabaseURL = ""
	cfg.GeoProviders = nil
	cfg.CollectorURL = ""
	return cfg
}

func TestNew_WithoutStores(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = ""

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Repo)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Worker)
	assert.Equal(t, cfg.FallbackDelay, a.Race.Delay)
	assert.Equal(t, cfg.FallbackMaxElapsed, a.Race.MaxElapsed)

	m := redirect.NewMachine()
	out := a.Pipeline.Run(context.Background(), pipeline.Input{
		Path:      "/s/r/105",
		UserAgent: desktopUA,
		Signals:   identity.Signals{UserAgent: desktopUA},
		ClientIP:  "203.0.113.5",
	}, m)

	require.NoError(t, out.Err)
	assert.Equal(t, "https://sajpeweb.raavan.site/?code=105", out.Decision.Primary)
	assert.Equal(t, "203.0.113.5", out.Record.Network.IP)
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNew_ServerModeNeverEchoes(t *testing.T) {
	echo := testutil.NewJSONServer(t, http.StatusOK, `{"ip":"198.51.100.250"}`)

	cfg := testConfig(t)
	cfg.RedisURL = ""
	cfg.IPEchoURL = echo.URL

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, Options{})
	require.NoError(t, err)
	defer a.Close()

	out := a.Pipeline.Run(context.Background(), pipeline.Input{
		Path:      "/s/r/105",
		UserAgent: desktopUA,
		ClientIP:  "10.0.0.4",
	}, redirect.NewMachine())

	assert.Equal(t, 0, echo.Hits())
	assert.Equal(t, "10.0.0.4", out.Record.Network.IP)
	assert.Equal(t, model.SourceNone, out.Record.Location.Source)
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNew_ReportsToCollectorAndStream(t *testing.T) {
	mr, client := testutil.NewMiniRedis(t)

	collector := testutil.NewJSONServer(t, http.StatusOK, `{"success":true}`)

	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.CollectorURL = collector.URL

	recorder := metrics.NewInMemory()
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), recorder, Options{})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Cache)
	assert.Nil(t, a.Worker, "worker needs Postgres")

	a.Pipeline.Run(context.Background(), pipeline.Input{
		Path:      "/b/r/202",
		UserAgent: desktopUA,
		Signals:   identity.Signals{UserAgent: desktopUA},
		ClientIP:  "198.51.100.20",
	}, redirect.NewMachine())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))

	assert.Equal(t, 1, collector.Hits())
	n, err := client.XLen(context.Background(), report.StreamKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNew_BadRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://:s3cret@127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, Options{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cret")
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"postgres://user:pass@db:5432/visits", "postgres://user@db:5432/visits"},
		{"redis://:pass@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"redis://cache:6379", "redis://cache:6379"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactURL(tt.in), tt.in)
	}
}

func TestSanitizeError(t *testing.T) {
	secret := "postgres://user:pass@db:5432/visits"
	err := errors.New("dial " + secret + " failed: password=hunter2 rejected")

	got := SanitizeError(err, secret)
	assert.NotContains(t, got, "user:pass")
	assert.NotContains(t, got, "hunter2")
	assert.Contains(t, got, "password=redacted")
	assert.Empty(t, SanitizeError(nil))
}
