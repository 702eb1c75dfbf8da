package middleware

import (
	"net/http"
	"strconv"

	"github.com/clearwell/practice-platform/internal/observability/metrics"
	"github.com/clearwell/practice-platform/internal/security"
	"github.com/clearwell/practice-platform/pkg/logging"
)

// RateLimit rejects clients that exceed the limiter's window with 429.
// Remaining quota and window reset are reported on every response. The
// limiter keys on client IP; chi's RealIP middleware should run first.
func RateLimit(limiter security.Limiter, m *metrics.SecurityMetrics, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), r.RemoteAddr)
			if err != nil {
				// Fail open: a broken limiter backend must not take the API down.
				logger.Error("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				m.ObserveRateLimitRejected()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
