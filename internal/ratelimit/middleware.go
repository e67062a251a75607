package ratelimit

import (
	"net/http"
	"strconv"
)

// DefaultRetryAfterSeconds is the default value for the Retry-After header
// when a rate limit is exceeded.
const DefaultRetryAfterSeconds = 1

// Middleware enforces the pacer's limits on incoming requests, keyed by
// getKey. Requests with an empty key pass through.
//
// Rejected requests get 429 Too Many Requests with:
//   - Retry-After header with the recommended wait time in seconds
//   - X-RateLimit-Remaining header set to 0
func Middleware(p *Pacer, getKey func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p == nil || !p.config.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			key := getKey(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := p.GetLimiter(key)
			if !limiter.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("Too Many Requests"))
				return
			}

			remaining := int(limiter.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
