package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/meter/pkg/telemetry/metrics"
)

// Metrics records request counts and latency per chi route pattern, so
// path parameters do not explode label cardinality. Requests that matched
// no route are recorded under "unmatched".
func Metrics(c *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			c.RecordHTTPRequest(route, r.Method, sw.status, time.Since(start))
		})
	}
}
