package network

import (
	"net"
	"net/http"
	"strings"
)

// LocalhostIP is reported when no request header or peer address parses.
const LocalhostIP = "127.0.0.1 (Localhost)"

// ClientIP extracts the originating address of r from proxy headers,
// falling back to the peer address. It returns "" when nothing parses.
// The headers are only trustworthy once middleware.TrustProxies has run.
func ClientIP(r *http.Request) string {
	if ip := validIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := validIP(part); ip != "" {
				return ip
			}
		}
	}
	if ip := validIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return validIP(host)
}

// DisplayIP is ClientIP with the localhost placeholder for empty results.
func DisplayIP(r *http.Request) string {
	if ip := ClientIP(r); ip != "" {
		return ip
	}
	return LocalhostIP
}

// IsPublic reports whether ip is a globally routable unicast address.
func IsPublic(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsGlobalUnicast() && !parsed.IsPrivate()
}

func validIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || net.ParseIP(s) == nil {
		return ""
	}
	return s
}
