package middleware

import (
	"net/http"
	"time"

	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/observability"
)

// Observability records request counts and latency. A nil metrics value
// records nothing.
func Observability(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}
