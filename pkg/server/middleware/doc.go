// Package middleware provides the HTTP middleware chain of the policyhub API.
//
// The chain, outermost first:
//
//	recovery -> logging -> request id -> CORS -> body limit -> tracing -> metrics -> mux
//
// RecoveryMiddleware turns handler panics into 500 responses. LoggingMiddleware
// records one structured log line per request. RequestIDMiddleware propagates
// or generates an X-Request-ID and stores it in the request context, where the
// logging handler picks it up. CORSMiddleware answers preflight requests.
// BodyLimitMiddleware caps request bodies. TracingMiddleware opens a server
// span per request and names it after the matched route. MetricsMiddleware
// sits directly on the mux so that it can read the matched route pattern.
//
// Wrapped response writers implement Unwrap so that http.ResponseController
// can reach the underlying connection for flushing and deadlines.
package middleware
