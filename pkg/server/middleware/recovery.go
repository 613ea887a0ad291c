package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/policyhub/pkg/server/types"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// Internal Server Error. The panic is logged with its stack trace; nothing
// about it is exposed to the client. http.ErrAbortHandler is re-panicked so
// the server can abort the connection as usual.
//
// Example usage:
//
//	handler = RecoveryMiddleware(logger)(handler)
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", w.Header().Get(RequestIDHeader),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				types.WriteError(w, http.StatusInternalServerError, types.CodeInternal,
					"An internal error occurred. Please try again later.")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
