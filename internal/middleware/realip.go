package middleware

import (
	"net"
	"net/http"

	"github.com/sajpe/visitgate/internal/network"
)

var forwardingHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// TrustProxies drops forwarding headers unless the peer is a trusted proxy,
// so network.ClientIP never reads a client-written address. From a trusted
// peer, X-Forwarded-For is cut down to the nearest untrusted hop.
func TrustProxies(trusted *network.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				peer = r.RemoteAddr
			}

			if !trusted.Contains(peer) {
				for _, h := range forwardingHeaders {
					r.Header.Del(h)
				}
			} else if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := trusted.NearestUntrusted(xff); ip != "" {
					r.Header.Set("X-Forwarded-For", ip)
				} else {
					r.Header.Del("X-Forwarded-For")
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
