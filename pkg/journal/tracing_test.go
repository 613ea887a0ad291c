package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/policyhub/pkg/config"
	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/registry"
	"mercator-hq/policyhub/pkg/telemetry/logging"
	"mercator-hq/policyhub/pkg/telemetry/tracing"
)

func spanRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, rec
}

func endedByName(rec *tracetest.SpanRecorder) map[string]sdktrace.ReadOnlySpan {
	out := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range rec.Ended() {
		out[s.Name()] = s
	}
	return out
}

func TestRecorder_TracesWriteAndAppend(t *testing.T) {
	provider, spans := spanRecorder(t)

	cfg := DefaultSQLConfig()
	cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	store, err := NewSQLStore(cfg, WithSQLTracer(provider.Tracer("store")))
	require.NoError(t, err)
	defer store.Close()

	reg := registry.New(registry.WithLogger(logging.Discard()))
	rec := NewRecorder(store, nil, WithTracer(provider.Tracer("recorder")), WithLogger(logging.Discard()))
	rec.Attach(reg)

	require.NoError(t, reg.Set("a", policy.State{Mode: policy.ModeFull}))
	require.NoError(t, rec.Close())

	byName := endedByName(spans)
	write, ok := byName["journal.write"]
	require.True(t, ok)
	appendSpan, ok := byName["journal.append"]
	require.True(t, ok)

	assert.Equal(t, write.SpanContext().TraceID(), appendSpan.SpanContext().TraceID())
	assert.Equal(t, write.SpanContext().SpanID(), appendSpan.Parent().SpanID())
	assert.Equal(t, codes.Ok, appendSpan.Status().Code)
	assert.Contains(t, appendSpan.Attributes(), tracing.BatchAttributes(1, reg.Snapshot().Version())[0])
}

func TestRecorder_TracesFailedWrite(t *testing.T) {
	provider, spans := spanRecorder(t)

	reg := registry.New(registry.WithLogger(logging.Discard()))
	rec := NewRecorder(failingStore{NewMemoryStore()}, nil,
		WithTracer(provider.Tracer("recorder")), WithLogger(logging.Discard()))
	rec.Attach(reg)

	require.NoError(t, reg.Set("a", policy.State{Mode: policy.ModeFull}))
	require.NoError(t, rec.Close())

	write, ok := endedByName(spans)["journal.write"]
	require.True(t, ok)
	assert.Equal(t, codes.Error, write.Status().Code)
	assert.Equal(t, "disk full", write.Status().Description)
}

func TestOpen_PassesSQLOptions(t *testing.T) {
	provider, spans := spanRecorder(t)

	store, err := Open(&config.JournalConfig{
		Backend: DriverSQLite,
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "j.db")},
	}, WithSQLTracer(provider.Tracer("store")))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(context.Background(), []Change{change(1, "a", OpSet, policy.ModeFull, time.Now())}))
	_, ok := endedByName(spans)["journal.append"]
	assert.True(t, ok)
}
