package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/sql-snippets/internal/metrics"
)

// unmatchedRoute labels requests no route pattern matched, so stray paths
// cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records a request count and latency per chi route pattern
// ("/api/snippets/{id}", not the concrete path).
func Metrics(m metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.IncRequestsTotal(route, wrapped.statusCode)
			m.ObserveRequestDuration(route, time.Since(start))
		})
	}
}
