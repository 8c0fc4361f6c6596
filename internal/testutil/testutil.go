// Package testutil holds helpers shared by unit and integration tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// NewMiniRedis starts an in-process Redis and returns a client for it.
// Both are closed when the test ends.
func NewMiniRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

const advisoryLockID int64 = 520520

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	return func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}, nil
}

// ResetVisitsSchema rolls every migration back and applies them again.
func ResetVisitsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := migrations.Reset(ctx, db, migrations.DefaultTable, logger); err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}
	if err := migrations.Up(ctx, db, migrations.DefaultTable, logger); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// NewTestVisit builds a complete visit record with sensible defaults.
func NewTestVisit(t testing.TB, refType, code string) model.VisitRecord {
	t.Helper()
	lat, lon := 19.076, 72.8777
	return model.VisitRecord{
		ID:       UniqueID("visit"),
		Referral: model.ReferralInfo{Type: refType, Code: code},
		Device: model.DeviceProfile{
			Category: model.DeviceMobile,
			OS:       "Android 13",
			Browser:  "Chrome",
			Model:    "SM-G991B",
		},
		Identity: model.VisitorIdentity{StableID: "0123456789abcdef0123456789abcdef"},
		Network:  model.NetworkInfo{IP: "203.0.113.7"},
		Location: model.LocationResult{
			Latitude:    &lat,
			Longitude:   &lon,
			City:        "Mumbai",
			State:       "Maharashtra",
			Country:     "India",
			PostalCode:  "400001",
			FullAddress: "Mumbai, Maharashtra, India",
			Accuracy:    model.AccuracyMedium,
			Source:      model.SourceIP,
		},
		VisitedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// StubServer is a JSON endpoint that answers every request the same way.
type StubServer struct {
	*httptest.Server
	hits atomic.Int32
}

// Hits returns how many requests the stub has served.
func (s *StubServer) Hits() int {
	return int(s.hits.Load())
}

// NewJSONServer serves body with status to every request until the test
// ends.
func NewJSONServer(t testing.TB, status int, body string) *StubServer {
	t.Helper()
	s := &StubServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
