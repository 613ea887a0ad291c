package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercator-hq/policyhub/pkg/config"
)

// HTTPMetrics tracks the HTTP API.
//
// Metrics:
//   - policyhub_http_requests_total: requests by route, method and status
//   - policyhub_http_request_duration_seconds: request latency by route
//   - policyhub_http_streams_active: open snapshot event streams
type HTTPMetrics struct {
	enabled bool

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streamsActive   prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics with the provided registry.
func NewHTTPMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, enabled bool) *HTTPMetrics {
	factory := promauto.With(registry)
	sub := subsystem(cfg, "http")

	return &HTTPMetrics{
		enabled: enabled,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		streamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "streams_active",
			Help:      "Number of open snapshot event streams",
		}),
	}
}

// ObserveRequest records one completed request. Route is the matched
// pattern, never the raw path, to keep cardinality bounded.
func (hm *HTTPMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if !hm.enabled {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	hm.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	hm.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// StreamOpened increments the active stream gauge.
func (hm *HTTPMetrics) StreamOpened() {
	if !hm.enabled {
		return
	}
	hm.streamsActive.Inc()
}

// StreamClosed decrements the active stream gauge.
func (hm *HTTPMetrics) StreamClosed() {
	if !hm.enabled {
		return
	}
	hm.streamsActive.Dec()
}
