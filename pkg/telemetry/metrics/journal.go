package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/policyhub/pkg/config"
)

// JournalMetrics tracks the change journal.
//
// Metrics:
//   - policyhub_journal_changes_appended_total: changes written to the store
//   - policyhub_journal_changes_dropped_total: changes lost to a full queue
//   - policyhub_journal_append_errors_total: failed store writes
//   - policyhub_journal_changes_pruned_total: changes removed by retention, by reason
//   - policyhub_journal_queue_depth: batches waiting for the writer
type JournalMetrics struct {
	enabled bool

	appendedTotal    prometheus.Counter
	droppedTotal     prometheus.Counter
	appendErrorTotal prometheus.Counter
	prunedTotal      *prometheus.CounterVec
	queueDepth       prometheus.Gauge
}

// NewJournalMetrics creates and registers journal metrics with the provided registry.
func NewJournalMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, enabled bool) *JournalMetrics {
	sub := subsystem(cfg, "journal")
	jm := &JournalMetrics{
		enabled: enabled,

		appendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "changes_appended_total",
			Help:      "Total number of changes written to the journal",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "changes_dropped_total",
			Help:      "Total number of changes dropped because the write queue was full",
		}),
		appendErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "append_errors_total",
			Help:      "Total number of failed journal writes",
		}),
		prunedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "changes_pruned_total",
			Help:      "Total number of changes removed by retention",
		}, []string{"reason"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: sub,
			Name:      "queue_depth",
			Help:      "Number of change batches waiting to be written",
		}),
	}

	registry.MustRegister(
		jm.appendedTotal,
		jm.droppedTotal,
		jm.appendErrorTotal,
		jm.prunedTotal,
		jm.queueDepth,
	)

	return jm
}

// RecordAppended counts changes written to the store.
func (jm *JournalMetrics) RecordAppended(n int) {
	if !jm.enabled {
		return
	}
	jm.appendedTotal.Add(float64(n))
}

// RecordDropped counts changes dropped before reaching the store.
func (jm *JournalMetrics) RecordDropped(n int) {
	if !jm.enabled {
		return
	}
	jm.droppedTotal.Add(float64(n))
}

// RecordAppendError counts a failed store write.
func (jm *JournalMetrics) RecordAppendError() {
	if !jm.enabled {
		return
	}
	jm.appendErrorTotal.Inc()
}

// SetQueueDepth sets the number of queued batches.
func (jm *JournalMetrics) SetQueueDepth(n int) {
	if !jm.enabled {
		return
	}
	jm.queueDepth.Set(float64(n))
}

// RecordPruned counts changes removed by retention. Reason is "age" or
// "max_records".
func (jm *JournalMetrics) RecordPruned(reason string, n int64) {
	if !jm.enabled {
		return
	}
	jm.prunedTotal.WithLabelValues(reason).Add(float64(n))
}
