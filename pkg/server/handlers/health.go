package handlers

import (
	"net/http"
	"time"

	"mercator-hq/policyhub/pkg/server/types"
	"mercator-hq/policyhub/pkg/telemetry/health"
)

// HealthHandler handles liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// ReadyHandler handles readiness probes. It answers 503 unless every check
// registered with the checker passes.
type ReadyHandler struct {
	checker *health.Checker
}

// NewReadyHandler creates a readiness handler.
func NewReadyHandler(checker *health.Checker) *ReadyHandler {
	return &ReadyHandler{checker: checker}
}

// ServeHTTP implements http.Handler for readiness checks.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())

	code := http.StatusOK
	if !report.Ready() {
		code = http.StatusServiceUnavailable
	}
	types.WriteJSON(w, code, report)
}
