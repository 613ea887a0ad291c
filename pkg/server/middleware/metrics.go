package middleware

import (
	"net/http"
	"time"
)

// RequestObserver records completed requests.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, duration time.Duration)
}

// MetricsMiddleware reports every request to observer labelled by the mux
// route pattern rather than the raw path, which keeps label cardinality
// bounded. It must wrap the *http.ServeMux directly: the mux records the
// matched pattern on the request it receives.
func MetricsMiddleware(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if observer == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			observer.ObserveRequest(r.Pattern, r.Method, rw.statusCode, time.Since(start))
		})
	}
}
