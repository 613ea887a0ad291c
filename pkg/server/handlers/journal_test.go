package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/journal"
	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/server/types"
	"mercator-hq/policyhub/pkg/telemetry/health"
)

func TestParseJournalQuery(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		check   func(t *testing.T, q *journal.Query)
	}{
		{
			name: "defaults",
			url:  "/v1/journal",
			check: func(t *testing.T, q *journal.Query) {
				assert.Equal(t, journal.DefaultQueryLimit, q.Limit)
				assert.Empty(t, q.PolicyID)
			},
		},
		{
			name: "filters",
			url:  "/v1/journal?policy=github&op=remove&limit=5&since=2026-01-01T00:00:00Z",
			check: func(t *testing.T, q *journal.Query) {
				assert.Equal(t, "github", q.PolicyID)
				assert.Equal(t, journal.OpRemove, q.Op)
				assert.Equal(t, 5, q.Limit)
				require.NotNil(t, q.Since)
				assert.Equal(t, 2026, q.Since.Year())
				assert.Nil(t, q.Until)
			},
		},
		{
			name: "limit capped",
			url:  "/v1/journal?limit=999999",
			check: func(t *testing.T, q *journal.Query) {
				assert.Equal(t, journal.MaxQueryLimit, q.Limit)
			},
		},
		{name: "bad limit", url: "/v1/journal?limit=ten", wantErr: true},
		{name: "zero limit", url: "/v1/journal?limit=0", wantErr: true},
		{name: "bad op", url: "/v1/journal?op=rename", wantErr: true},
		{name: "bad since", url: "/v1/journal?since=yesterday", wantErr: true},
		{name: "empty window", url: "/v1/journal?since=2026-01-02T00:00:00Z&until=2026-01-01T00:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := parseJournalQuery(httptest.NewRequest(http.MethodGet, tt.url, nil))
			if tt.wantErr {
				var reqErr *types.RequestError
				assert.ErrorAs(t, err, &reqErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, q)
		})
	}
}

func TestJournalHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewJournalHandler(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/journal", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), types.CodeJournalDisabled)
	})

	t.Run("lists changes", func(t *testing.T) {
		store := journal.NewMemoryStore()
		require.NoError(t, store.Append(context.Background(), []journal.Change{
			{ID: uuid.New(), Version: 1, PolicyID: "a", Op: journal.OpSet, Mode: policy.ModeFull, RecordedAt: time.Now()},
			{ID: uuid.New(), Version: 2, PolicyID: "b", Op: journal.OpSet, Mode: policy.ModeReadOnly, RecordedAt: time.Now()},
		}))

		w := httptest.NewRecorder()
		NewJournalHandler(store).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/journal?policy=b", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp JournalResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Changes, 1)
		assert.Equal(t, policy.ModeReadOnly, resp.Changes[0].Mode)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewJournalHandler(journal.NewMemoryStore()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/journal", nil))
		assert.JSONEq(t, `{"changes":[]}`, w.Body.String())
	})
}

func TestReadyHandler(t *testing.T) {
	checker := health.New(time.Second)
	checker.Register("a", func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	NewReadyHandler(checker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)

	checker.Register("b", func(context.Context) error { return assert.AnError })
	w = httptest.NewRecorder()
	NewReadyHandler(checker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, health.StatusNotReady, report.Status)
	assert.Equal(t, health.StatusOK, report.Checks["a"].Status)
	assert.Equal(t, assert.AnError.Error(), report.Checks["b"].Message)
}
