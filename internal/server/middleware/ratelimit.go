package middleware

import (
	"net"
	"net/http"
	"time"

	"derivflow/internal/domain"
)

// RateLimit returns middleware that applies per-client rate limiting using
// the provided domain.RateLimiter. Each unique client IP is limited to
// `limit` requests per `window`. A nil limiter disables the middleware.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), "api:"+clientIP(r), limit, window)
			if err != nil {
				// Fail open on limiter errors rather than blocking
				// legitimate traffic.
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
