package network

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sajpe/visitgate/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEchoClient_ResolveIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"valid", http.StatusOK, `{"ip":"203.0.113.9"}`, "203.0.113.9"},
		{"ipv6", http.StatusOK, `{"ip":"2001:db8::1"}`, "2001:db8::1"},
		{"server error", http.StatusInternalServerError, `{"ip":"203.0.113.9"}`, UnknownIP},
		{"malformed body", http.StatusOK, `not json`, UnknownIP},
		{"missing field", http.StatusOK, `{}`, UnknownIP},
		{"invalid address", http.StatusOK, `{"ip":"nope"}`, UnknownIP},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := testutil.NewJSONServer(t, tt.status, tt.body)

			client := NewEchoClient(srv.URL, srv.Client(), time.Second, testLogger())
			if got := client.ResolveIP(context.Background()); got != tt.want {
				t.Errorf("ResolveIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEchoClient_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewEchoClient(srv.URL, srv.Client(), 50*time.Millisecond, testLogger())
	if got := client.ResolveIP(context.Background()); got != UnknownIP {
		t.Errorf("ResolveIP() = %q, want %q", got, UnknownIP)
	}
}

func TestEchoClient_Unreachable(t *testing.T) {
	t.Parallel()

	client := NewEchoClient("http://127.0.0.1:1", NewHTTPClient(time.Second), time.Second, testLogger())
	if got := client.ResolveIP(context.Background()); got != UnknownIP {
		t.Errorf("ResolveIP() = %q, want %q", got, UnknownIP)
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	if got := Static("198.51.100.1").ResolveIP(context.Background()); got != "198.51.100.1" {
		t.Errorf("Static.ResolveIP() = %q", got)
	}
	if got := Static("").ResolveIP(context.Background()); got != UnknownIP {
		t.Errorf("empty Static.ResolveIP() = %q, want %q", got, UnknownIP)
	}
	if Known(UnknownIP) || Known("") || !Known("198.51.100.1") {
		t.Error("Known() misclassified the sentinel")
	}
}
