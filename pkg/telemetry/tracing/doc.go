// Package tracing provides OpenTelemetry tracing for policyhub.
//
// New builds a tracer provider from config.TracingConfig: a ParentBased
// sampler (always, never or a trace-ID ratio) in front of a batching OTLP
// gRPC exporter. When tracing is disabled New returns a no-op tracer, so
// callers never need a nil check.
//
// Incoming requests are joined to their caller's trace through the W3C
// traceparent header (see Extract). The HTTP middleware in pkg/server opens
// one server span per request; the journal opens spans for each batch it
// writes, with the storage append as a child.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "seed.reload")
//	defer span.End()
package tracing
