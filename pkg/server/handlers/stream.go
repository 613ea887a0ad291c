package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/policyhub/pkg/policy/registry"
	"mercator-hq/policyhub/pkg/server/types"
	"mercator-hq/policyhub/pkg/telemetry/logging"
)

// StreamMetrics tracks open streams.
type StreamMetrics interface {
	StreamOpened()
	StreamClosed()
}

type noopStreamMetrics struct{}

func (noopStreamMetrics) StreamOpened() {}
func (noopStreamMetrics) StreamClosed() {}

// StreamConfig configures the snapshot event stream.
type StreamConfig struct {
	// Buffer is the number of snapshots queued per client. When a slow
	// client fills it, the oldest queued snapshot is discarded so the
	// newest one always gets through.
	Buffer int

	// Heartbeat is the interval between keep-alive comments. Zero
	// disables heartbeats.
	Heartbeat time.Duration
}

// StreamHandler streams registry snapshots as server-sent events. The first
// event is the snapshot current at subscription time.
type StreamHandler struct {
	registry *registry.Registry
	config   StreamConfig
	metrics  StreamMetrics
	logger   *slog.Logger

	done     chan struct{}
	doneOnce sync.Once
}

// NewStreamHandler creates a stream handler. metrics may be nil.
func NewStreamHandler(reg *registry.Registry, cfg StreamConfig, metrics StreamMetrics, logger *slog.Logger) *StreamHandler {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	if metrics == nil {
		metrics = noopStreamMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		registry: reg,
		config:   cfg,
		metrics:  metrics,
		logger:   logging.Component(logger, "http.stream"),
		done:     make(chan struct{}),
	}
}

// Shutdown ends every open stream. http.Server.Shutdown does not cancel
// in-flight requests, so the server registers this with RegisterOnShutdown.
func (h *StreamHandler) Shutdown() {
	h.doneOnce.Do(func() { close(h.done) })
}

// ServeHTTP implements http.Handler.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		types.HandleError(w, err)
		return
	}

	streamID := uuid.NewString()
	logger := h.logger.With("stream_id", streamID)

	queue := newSnapshotQueue(h.config.Buffer)
	unsubscribe := h.registry.Subscribe(queue.push)
	defer unsubscribe()

	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.WarnContext(r.Context(), "stream not flushable", "error", err)
		return
	}

	logger.InfoContext(r.Context(), "snapshot stream opened", "buffer", h.config.Buffer)

	var heartbeat <-chan time.Time
	if h.config.Heartbeat > 0 {
		ticker := time.NewTicker(h.config.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			logger.InfoContext(r.Context(), "snapshot stream closed", "dropped", queue.dropped())
			return

		case <-h.done:
			logger.InfoContext(r.Context(), "snapshot stream closed by shutdown", "dropped", queue.dropped())
			return

		case snap := <-queue.ch:
			if err := writeSnapshotEvent(w, snap); err != nil {
				logger.WarnContext(r.Context(), "failed to write snapshot event", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-heartbeat:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSnapshotEvent(w io.Writer, snap registry.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version(), data)
	return err
}
