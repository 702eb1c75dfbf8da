package middleware

import (
	"net"
	"net/http"

	"github.com/clearwell/practice-platform/internal/session"
)

// ClientInfo stores the client address and user agent in the request context
// so audit writers deep in the call stack can record them. chi's RealIP
// middleware should run first so RemoteAddr reflects the real client.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := session.WithClientInfo(r.Context(), ip, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
