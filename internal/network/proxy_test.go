package network

import (
	"testing"
)

func TestParseTrustedProxies(t *testing.T) {
	t.Parallel()

	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 203.0.113.10 ", "", "fc00::/7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"203.0.113.10", true},
		{"203.0.113.11", false},
		{"::ffff:10.0.0.9", true},
		{"fd12::1", true},
		{"8.8.8.8", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := trusted.Contains(tt.ip); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}

	for _, bad := range []string{"10.0.0.0/33", "not-an-ip"} {
		if _, err := ParseTrustedProxies([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestTrustedProxies_NilTrustsNobody(t *testing.T) {
	t.Parallel()

	var trusted *TrustedProxies
	if trusted.Contains("127.0.0.1") {
		t.Error("nil set should not trust loopback")
	}
}

func TestNearestUntrusted(t *testing.T) {
	t.Parallel()

	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		xff  string
		want string
	}{
		{"198.51.100.5", "198.51.100.5"},
		{"1.2.3.4, 198.51.100.5", "198.51.100.5"},
		{"1.2.3.4, 198.51.100.5, 10.0.0.7", "198.51.100.5"},
		{"198.51.100.5, junk", "198.51.100.5"},
		{"10.0.0.7, 10.0.0.8", ""},
	}
	for _, tt := range tests {
		if got := trusted.NearestUntrusted(tt.xff); got != tt.want {
			t.Errorf("NearestUntrusted(%q) = %q, want %q", tt.xff, got, tt.want)
		}
	}
}
