// Package telemetry groups the observability packages used by policyhub.
//
// # Components
//
//   - logging: slog construction and request/policy context fields
//   - metrics: Prometheus collectors for the registry, the journal and HTTP
//   - health: readiness checks behind GET /ready
//   - tracing: OpenTelemetry spans for HTTP requests and journal writes
//
// Components receive these as explicit dependencies. The CLI sets the
// default slog logger, and an enabled tracer installs itself as the global
// OpenTelemetry provider.
package telemetry
