package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/policyhub/pkg/policy/registry"
	"mercator-hq/policyhub/pkg/telemetry/tracing"
)

// Metrics receives recorder measurements.
type Metrics interface {
	RecordAppended(n int)
	RecordDropped(n int)
	RecordAppendError()
	SetQueueDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordAppended(int) {}
func (noopMetrics) RecordDropped(int) {}
func (noopMetrics) RecordAppendError() {}
func (noopMetrics) SetQueueDepth(int) {}

// RecorderConfig contains configuration for the change recorder.
type RecorderConfig struct {
	// AsyncBuffer is the number of change batches that can wait for the
	// writer. Default: 1024
	AsyncBuffer int

	// WriteTimeout bounds a single append. Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		AsyncBuffer:  1024,
		WriteTimeout: 5 * time.Second,
	}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) RecorderOption {
	return func(r *Recorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger.With("component", "journal.recorder")
		}
	}
}

// WithTracer opens a span for every batch written.
func WithTracer(tracer trace.Tracer) RecorderOption {
	return func(r *Recorder) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// Recorder turns registry snapshots into stored changes. Observing never
// blocks the registry: batches go through a bounded queue and are dropped
// and counted when it is full.
type Recorder struct {
	store   Store
	config  *RecorderConfig
	metrics Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	// mu guards the fields below and every send on batches, so nothing is
	// queued once done is closed.
	mu sync.Mutex
	// last is the newest snapshot whose changes were queued; latest is the
	// newest snapshot observed. They differ after a drop.
	last   registry.Snapshot
	latest registry.Snapshot
	primed bool
	closed bool

	batches chan []Change
	done    chan struct{}
	wg      sync.WaitGroup

	unsubscribe registry.Unsubscribe
	closeOnce   sync.Once
	dropped     atomic.Int64
}

// NewRecorder creates a recorder writing to store and starts its writer.
func NewRecorder(store Store, config *RecorderConfig, opts ...RecorderOption) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultRecorderConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultRecorderConfig().WriteTimeout
	}

	r := &Recorder{
		store:   store,
		config:  config,
		metrics: noopMetrics{},
		logger:  slog.Default().With("component", "journal.recorder"),
		tracer:  noop.NewTracerProvider().Tracer(""),
		batches: make(chan []Change, config.AsyncBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("journal recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Attach subscribes the recorder to reg. The snapshot delivered on
// subscription becomes the baseline and is not recorded.
func (r *Recorder) Attach(reg *registry.Registry) {
	r.unsubscribe = reg.Subscribe(r.Observe)
}

// Observe is the registry observer. Changes are diffed against the last
// queued snapshot, so a dropped batch is folded into the next one and the
// stored state still converges on the registry.
func (r *Recorder) Observe(snap registry.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.primed {
		r.last, r.latest = snap, snap
		r.primed = true
		return
	}
	r.latest = snap

	changes := Diff(r.last, snap)
	if len(changes) == 0 {
		r.last = snap
		return
	}

	if r.closed {
		r.drop(changes, "recorder closed")
		return
	}

	select {
	case r.batches <- changes:
		r.last = snap
		r.metrics.SetQueueDepth(len(r.batches))
	default:
		r.drop(changes, "queue full")
	}
}

func (r *Recorder) drop(changes []Change, reason string) {
	r.dropped.Add(int64(len(changes)))
	r.metrics.RecordDropped(len(changes))
	r.logger.Warn("dropping journal changes",
		"reason", reason,
		"changes", len(changes),
		"version", changes[0].Version,
		"queue_capacity", r.config.AsyncBuffer,
	)
}

// Dropped returns the number of changes dropped so far.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close unsubscribes, queues whatever earlier drops left unrecorded, writes
// every queued batch and stops the writer.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}

		r.mu.Lock()
		r.closed = true
		if r.primed {
			if changes := Diff(r.last, r.latest); len(changes) > 0 {
				// The worker is still running, so this send completes.
				r.batches <- changes
				r.last = r.latest
			}
		}
		close(r.done)
		r.mu.Unlock()

		r.wg.Wait()
		r.logger.Info("journal recorder shut down", "dropped", r.dropped.Load())
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case batch := <-r.batches:
			r.write(batch)
		case <-r.done:
			for {
				select {
				case batch := <-r.batches:
					r.write(batch)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(batch []Change) {
	r.metrics.SetQueueDepth(len(r.batches))

	ctx, span := r.tracer.Start(context.Background(), "journal.write",
		trace.WithAttributes(tracing.BatchAttributes(len(batch), batch[len(batch)-1].Version)...),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
	defer cancel()

	err := r.store.Append(ctx, batch)
	tracing.SetStatus(span, err)
	if err != nil {
		r.metrics.RecordAppendError()
		r.logger.Error("failed to append journal changes",
			"error", err,
			"changes", len(batch),
			"version", batch[0].Version,
		)
		return
	}

	r.metrics.RecordAppended(len(batch))
	r.logger.Debug("journal changes appended",
		"changes", len(batch),
		"version", batch[0].Version,
	)
}
