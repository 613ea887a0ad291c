// Package metrics exports policyhub's Prometheus metrics.
//
// A single Collector owns a prometheus.Registry and three metric groups:
// registry mutations and fan-out, the change journal, and the HTTP API.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	reg := registry.New(registry.WithInstrumentation(collector.Policies()))
//	mux.Handle("/metrics", collector.Handler())
package metrics
