package network

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Forwarded-For": "198.51.100.2"}, "10.0.0.1:1234", "203.0.113.1"},
		{"first forwarded", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.3"}, "10.0.0.1:1234", "198.51.100.2"},
		{"skips garbage forwarded", map[string]string{"X-Forwarded-For": "unknown, 198.51.100.7"}, "10.0.0.1:1234", "198.51.100.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.1:1234", "198.51.100.3"},
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"remote addr without port", nil, "192.0.2.11", "192.0.2.11"},
		{"nothing parses", nil, "pipe", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayIP_LocalhostFallback(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/api/ip", nil)
	r.RemoteAddr = "@"
	if got := DisplayIP(r); got != LocalhostIP {
		t.Errorf("DisplayIP() = %q, want %q", got, LocalhostIP)
	}
}

func TestIsPublic(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"8.8.8.8":     true,
		"203.0.113.9": true,
		"10.1.2.3":    false,
		"192.168.0.1": false,
		"127.0.0.1":   false,
		"::1":         false,
		"not-an-ip":   false,
		"":            false,
	}
	for ip, want := range tests {
		if got := IsPublic(ip); got != want {
			t.Errorf("IsPublic(%q) = %v, want %v", ip, got, want)
		}
	}
}
