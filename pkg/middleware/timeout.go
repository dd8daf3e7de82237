package middleware

import (
	"context"
	"net/http"
	"time"
)

// Deadline bounds every request's context by timeout. Handlers observe the
// deadline through the context and write their own error response; the
// facet handler maps context.DeadlineExceeded to 503.
func Deadline(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
