package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/policyhub/pkg/telemetry/tracing"
)

// TraceIDHeader carries the trace ID of the request span back to the client.
const TraceIDHeader = "X-Trace-ID"

// TracingMiddleware opens one server span per request, continuing the
// caller's trace when the request carries a traceparent header. The span is
// renamed to the matched route once the mux has run, so it must wrap the
// metrics middleware or the mux itself.
func TracingMiddleware(tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tracer == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := tracing.Extract(r.Context(), r.Header)
			ctx, span := tracer.Start(ctx, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				w.Header().Set(TraceIDHeader, sc.TraceID().String())
			}

			rw := newResponseWriter(w)
			req := r.WithContext(ctx)
			next.ServeHTTP(rw, req)

			if req.Pattern != "" {
				span.SetName(req.Pattern)
				span.SetAttributes(attribute.String("http.route", req.Pattern))
			}
			span.SetAttributes(
				attribute.Int("http.response.status_code", rw.statusCode),
				attribute.String(tracing.AttrRequestID, rw.Header().Get(RequestIDHeader)),
			)
			if rw.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
			}
		})
	}
}
