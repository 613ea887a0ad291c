package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/config"
	"mercator-hq/policyhub/pkg/journal"
	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/telemetry/logging"
)

func testConfig(t *testing.T, seedPath string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Registry.StreamHeartbeat = 0
	cfg.Journal.Enabled = true
	cfg.Journal.Backend = "memory"
	cfg.Journal.Retention.PruneSchedule = ""
	cfg.Seed.Paths = []string{seedPath}
	cfg.Templates = []policy.Template{{ID: "github", Name: "GitHub"}}
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestApp_SeedsAndServes(t *testing.T) {
	dir := t.TempDir()
	seedPath := writeFile(t, dir, "seed.yaml", "policies:\n  github:\n    mode: full\n")

	a, err := newApp(context.Background(), testConfig(t, seedPath), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.close()) })

	st, ok := a.registry.Get("github")
	require.True(t, ok)
	assert.Equal(t, policy.ModeFull, st.Mode)
	assert.Equal(t, 1, a.catalog.Count())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	req, err := http.NewRequest(http.MethodPut, base+"/v1/policies/jira", strings.NewReader(`{"mode":"readonly"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/v1/policies")
	require.NoError(t, err)
	var snap struct {
		Policies map[string]policy.State `json:"policies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Equal(t, map[string]policy.State{
		"github": {Mode: policy.ModeFull},
		"jira":   {Mode: policy.ModeReadOnly},
	}, snap.Policies)

	assert.Eventually(t, func() bool {
		changes, err := a.store.Query(context.Background(), &journal.Query{PolicyID: "jira", Limit: 10})
		return err == nil && len(changes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestApp_Reload(t *testing.T) {
	dir := t.TempDir()
	seedPath := writeFile(t, dir, "seed.yaml", "policies:\n  github:\n    mode: full\n  jira:\n    mode: full\n")

	a, err := newApp(context.Background(), testConfig(t, seedPath), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.close() })

	require.NoError(t, a.registry.Set("slack", policy.State{Mode: policy.ModeDisabled}))
	writeFile(t, dir, "seed.yaml", "policies:\n  github:\n    mode: readonly\n")
	require.NoError(t, a.reload(context.Background()))

	snap := a.registry.Snapshot()
	assert.Equal(t, []string{"github", "slack"}, snap.IDs())
	st, _ := snap.Get("github")
	assert.Equal(t, policy.ModeReadOnly, st.Mode)
}

func TestApp_StrictSeedFailure(t *testing.T) {
	dir := t.TempDir()
	seedPath := writeFile(t, dir, "seed.yaml", "policies:\n  github:\n    mode: admin\n")

	cfg := testConfig(t, seedPath)
	cfg.Seed.Strict = true
	_, err := newApp(context.Background(), cfg, logging.Discard())
	require.Error(t, err)

	cfg.Seed.Strict = false
	a, err := newApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.close()
	assert.Equal(t, 0, a.registry.Snapshot().Len())
}

func TestApp_Tracing(t *testing.T) {
	dir := t.TempDir()
	seedPath := writeFile(t, dir, "seed.yaml", "policies:\n  github:\n    mode: full\n")

	cfg := testConfig(t, seedPath)
	cfg.Telemetry.Tracing.Enabled = true
	cfg.Telemetry.Tracing.Sampler = "always"
	cfg.Telemetry.Tracing.Endpoint = "127.0.0.1:1"
	cfg.Telemetry.Tracing.Insecure = true
	cfg.Telemetry.Tracing.Timeout = 200 * time.Millisecond
	require.NoError(t, config.Validate(cfg))

	a, err := newApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })
	require.True(t, a.tracer.Enabled())

	rr := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/policies/github", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, rr.Header().Get("X-Trace-ID"), 32)
}

func TestApp_InvalidTracingConfigCleansUp(t *testing.T) {
	dir := t.TempDir()
	seedPath := writeFile(t, dir, "seed.yaml", "policies: {}\n")

	cfg := testConfig(t, seedPath)
	cfg.Telemetry.Tracing.Enabled = true
	cfg.Telemetry.Tracing.Sampler = "sometimes"

	a, err := newApp(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "tracing")
}
