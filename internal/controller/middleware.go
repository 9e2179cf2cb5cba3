// internal/controller/middleware.go
package controller

import (
	"net/http"
	"strconv"

	"github.com/unclebandit/message-router/internal/service"
)

// RateLimit enforces the per-caller API windows on every request.
// Caller identity comes from the auth layer upstream; here it is read
// from the forwarded identity headers.
func RateLimit(limiter *service.RateLimitService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			tenantID := r.Header.Get("X-Tenant-ID")

			allowed, retryAfter, _ := limiter.CheckApiLimit(userID, tenantID, r.URL.Path)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
