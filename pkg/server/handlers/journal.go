package handlers

import (
	"net/http"
	"strconv"
	"time"

	"mercator-hq/policyhub/pkg/journal"
	"mercator-hq/policyhub/pkg/server/types"
)

// JournalResponse is the body of GET /v1/journal.
type JournalResponse struct {
	Changes []journal.Change `json:"changes"`
}

// JournalHandler serves recorded changes. A nil store means the journal is
// disabled and every request is answered with 404.
type JournalHandler struct {
	store journal.Store
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(store journal.Store) *JournalHandler {
	return &JournalHandler{store: store}
}

// ServeHTTP implements http.Handler.
//
// Query parameters: policy, op (set|remove), since and until (RFC 3339),
// limit (default 100, capped at 10000).
func (h *JournalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		types.WriteError(w, http.StatusNotFound, types.CodeJournalDisabled, "change journal is disabled")
		return
	}

	q, err := parseJournalQuery(r)
	if err != nil {
		types.HandleError(w, err)
		return
	}

	changes, err := h.store.Query(r.Context(), q)
	if err != nil {
		types.HandleError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, JournalResponse{Changes: changes})
}

func parseJournalQuery(r *http.Request) (*journal.Query, error) {
	params := r.URL.Query()
	q := &journal.Query{
		PolicyID: params.Get("policy"),
		Op:       journal.Op(params.Get("op")),
	}

	if q.Op != "" && !q.Op.Valid() {
		return nil, types.BadRequest(types.CodeInvalidParameter, "op must be set or remove")
	}

	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return nil, types.BadRequest(types.CodeInvalidParameter, "limit must be a positive integer")
		}
		q.Limit = limit
	}

	for name, dst := range map[string]**time.Time{"since": &q.Since, "until": &q.Until} {
		v := params.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, types.BadRequest(types.CodeInvalidParameter, name+" must be an RFC 3339 timestamp")
		}
		*dst = &t
	}

	if err := q.Validate(); err != nil {
		return nil, types.BadRequest(types.CodeInvalidParameter, err.Error())
	}
	return q, nil
}
