package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/policyhub/pkg/config"
)

// RegistryMetrics tracks the policy registry. It satisfies
// registry.Instrumentation.
//
// Metrics:
//   - policyhub_registry_mutations_total: mutating calls by operation and outcome
//   - policyhub_registry_entries: entries in the latest snapshot
//   - policyhub_registry_subscribers: active subscriptions
//   - policyhub_registry_fanout_duration_seconds: time to notify all observers
//   - policyhub_registry_fanout_observers: observers notified per publish
type RegistryMetrics struct {
	enabled bool

	mutationsTotal *prometheus.CounterVec
	entries        prometheus.Gauge
	subscribers    prometheus.Gauge
	fanOutDuration prometheus.Histogram
	fanOutSize     prometheus.Histogram
}

// NewRegistryMetrics creates and registers registry metrics with the provided registry.
func NewRegistryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, enabled bool) *RegistryMetrics {
	rm := &RegistryMetrics{
		enabled: enabled,

		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem(cfg, "registry"),
				Name:      "mutations_total",
				Help:      "Total number of registry mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem(cfg, "registry"),
				Name:      "entries",
				Help:      "Number of policies in the current snapshot",
			},
		),

		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem(cfg, "registry"),
				Name:      "subscribers",
				Help:      "Number of active registry subscriptions",
			},
		),

		fanOutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem(cfg, "registry"),
				Name:      "fanout_duration_seconds",
				Help:      "Time spent notifying observers of one snapshot",
				Buckets:   cfg.FanOutBuckets,
			},
		),

		fanOutSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem(cfg, "registry"),
				Name:      "fanout_observers",
				Help:      "Number of observers notified per snapshot",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
			},
		),
	}

	registry.MustRegister(
		rm.mutationsTotal,
		rm.entries,
		rm.subscribers,
		rm.fanOutDuration,
		rm.fanOutSize,
	)

	return rm
}

// RecordMutation counts a mutating call.
func (rm *RegistryMetrics) RecordMutation(op, outcome string) {
	if !rm.enabled {
		return
	}
	rm.mutationsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordFanOut observes one notification round.
func (rm *RegistryMetrics) RecordFanOut(observers int, duration time.Duration) {
	if !rm.enabled {
		return
	}
	rm.fanOutDuration.Observe(duration.Seconds())
	rm.fanOutSize.Observe(float64(observers))
}

// SetEntries sets the entry gauge.
func (rm *RegistryMetrics) SetEntries(n int) {
	if !rm.enabled {
		return
	}
	rm.entries.Set(float64(n))
}

// SetSubscribers sets the subscriber gauge.
func (rm *RegistryMetrics) SetSubscribers(n int) {
	if !rm.enabled {
		return
	}
	rm.subscribers.Set(float64(n))
}

// subsystem joins the configured subsystem with a group name.
func subsystem(cfg *config.MetricsConfig, group string) string {
	if cfg.Subsystem == "" {
		return group
	}
	return cfg.Subsystem + "_" + group
}
