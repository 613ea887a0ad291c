package handlers

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/registry"
	"mercator-hq/policyhub/pkg/server/types"
	"mercator-hq/policyhub/pkg/telemetry/logging"
	"mercator-hq/policyhub/pkg/telemetry/tracing"
)

// PolicyResponse is the body returned for a single policy.
type PolicyResponse struct {
	ID   string      `json:"id"`
	Mode policy.Mode `json:"mode"`
}

// PolicyHandler serves reads and writes against the registry.
type PolicyHandler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewPolicyHandler creates a policy handler.
func NewPolicyHandler(reg *registry.Registry, logger *slog.Logger) *PolicyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyHandler{
		registry: reg,
		logger:   logging.Component(logger, "http.policies"),
	}
}

// List writes the current snapshot.
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	types.WriteJSON(w, http.StatusOK, h.registry.Snapshot())
}

// Get writes the state of one policy, or 404.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := h.registry.Get(id)
	if !ok {
		notFound(w, "policy", id)
		return
	}
	types.WriteJSON(w, http.StatusOK, PolicyResponse{ID: id, Mode: st.Mode})
}

// Put sets the state of a policy, creating it if needed.
func (h *PolicyHandler) Put(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := logging.WithPolicyID(r.Context(), id)

	var st policy.State
	if err := decodeJSON(r, &st); err != nil {
		types.HandleError(w, err)
		return
	}
	if err := h.registry.Set(id, st); err != nil {
		types.HandleError(w, err)
		return
	}

	annotate(r, id, st.Mode)
	h.logger.InfoContext(ctx, "policy set", "mode", st.Mode)
	types.WriteJSON(w, http.StatusOK, PolicyResponse{ID: id, Mode: st.Mode})
}

// Patch merges a patch into an existing policy. A missing policy is a 404
// and the registry is left untouched.
func (h *PolicyHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := logging.WithPolicyID(r.Context(), id)

	var patch policy.Patch
	if err := decodeJSON(r, &patch); err != nil {
		types.HandleError(w, err)
		return
	}

	st, updated, err := h.registry.Update(id, patch)
	if err != nil {
		types.HandleError(w, err)
		return
	}
	if !updated {
		notFound(w, "policy", id)
		return
	}

	annotate(r, id, st.Mode)
	h.logger.InfoContext(ctx, "policy updated", "mode", st.Mode)
	types.WriteJSON(w, http.StatusOK, PolicyResponse{ID: id, Mode: st.Mode})
}

// Delete removes a policy. It answers 204 whether or not the policy existed.
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	annotate(r, id, "")
	if h.registry.Remove(id) {
		h.logger.InfoContext(logging.WithPolicyID(r.Context(), id), "policy removed")
	}
	w.WriteHeader(http.StatusNoContent)
}

// annotate tags the request span with the policy it wrote.
func annotate(r *http.Request, id string, mode policy.Mode) {
	trace.SpanFromContext(r.Context()).SetAttributes(tracing.PolicyAttributes(id, string(mode))...)
}

func notFound(w http.ResponseWriter, kind, id string) {
	types.WriteError(w, http.StatusNotFound, types.CodeNotFound, kind+" "+id+" not found")
}
