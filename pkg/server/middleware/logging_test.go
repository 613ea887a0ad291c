package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusOK, "INFO"},
		{"client error", http.StatusNotFound, "WARN"},
		{"server error", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, nil))

			handler := LoggingMiddleware(logger)(RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/policies", nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "request completed", entry["msg"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, float64(4), entry["bytes"])
			assert.NotEmpty(t, entry["request_id"])
		})
	}
}

func TestResponseWriter_Streaming(t *testing.T) {
	srv := httptest.NewServer(LoggingMiddleware(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		assert.NoError(t, rc.SetWriteDeadline(time.Time{}))
		_, _ = io.WriteString(w, "first\n")
		assert.NoError(t, rc.Flush())
		<-r.Context().Done()
	})))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, len("first\n"))
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(buf))
}

func TestBodyLimitMiddleware(t *testing.T) {
	handler := BodyLimitMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		var maxErr *http.MaxBytesError
		if assert.ErrorAs(t, err, &maxErr) {
			assert.Equal(t, int64(8), maxErr.Limit)
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"mode":"full"}`)))

	unlimited := BodyLimitMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Len(t, b, 15)
	}))
	unlimited.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"mode":"full"}`)))
}

type recordedRequest struct {
	route, method string
	status        int
}

type fakeObserver struct{ requests []recordedRequest }

func (f *fakeObserver) ObserveRequest(route, method string, status int, _ time.Duration) {
	f.requests = append(f.requests, recordedRequest{route, method, status})
}

func TestMetricsMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/policies/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	observer := &fakeObserver{}
	handler := MetricsMiddleware(observer)(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/policies/abc", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, observer.requests, 2)
	assert.Equal(t, recordedRequest{"GET /v1/policies/{id}", http.MethodGet, http.StatusNotFound}, observer.requests[0])
	assert.Equal(t, "", observer.requests[1].route)
	assert.Equal(t, http.StatusNotFound, observer.requests[1].status)
}
