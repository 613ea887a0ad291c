package middleware

import "net/http"

// BodyLimitMiddleware caps request bodies at limit bytes. Reads beyond the
// limit fail with *http.MaxBytesError, which handlers report as 413.
// A limit of zero or less disables the cap.
func BodyLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
