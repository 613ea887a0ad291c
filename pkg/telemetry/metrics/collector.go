package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/policyhub/pkg/config"
)

// Collector owns the Prometheus registry and every metric group exported by
// policyhub. The groups are handed to the components that feed them:
// Policies to the policy registry, Journal to the recorder and pruner, and
// HTTP to the server middleware.
//
// When metrics are disabled every recording method is a no-op, so callers
// never need to check.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	policyMetrics  *RegistryMetrics
	journalMetrics *JournalMetrics
	httpMetrics    *HTTPMetrics
}

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil a fresh one is created, with the Go
// runtime and process collectors attached.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.FanOutBuckets) == 0 {
		cfg.FanOutBuckets = append([]float64(nil), config.DefaultFanOutBuckets...)
	}

	enabled := cfg.IsEnabled()
	return &Collector{
		config:         cfg,
		registry:       registry,
		policyMetrics:  NewRegistryMetrics(cfg, registry, enabled),
		journalMetrics: NewJournalMetrics(cfg, registry, enabled),
		httpMetrics:    NewHTTPMetrics(cfg, registry, enabled),
	}
}

// Policies returns the metrics fed by the policy registry.
func (c *Collector) Policies() *RegistryMetrics {
	return c.policyMetrics
}

// Journal returns the metrics fed by the change journal.
func (c *Collector) Journal() *JournalMetrics {
	return c.journalMetrics
}

// HTTP returns the metrics fed by the HTTP server.
func (c *Collector) HTTP() *HTTPMetrics {
	return c.httpMetrics
}

// Enabled reports whether metrics are being recorded.
func (c *Collector) Enabled() bool {
	return c.config.IsEnabled()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
