package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/registry"
	"mercator-hq/policyhub/pkg/telemetry/logging"
)

type countingMetrics struct {
	mu          sync.Mutex
	appended    int
	dropped     int
	appendError int
}

func (m *countingMetrics) RecordAppended(n int) { m.mu.Lock(); m.appended += n; m.mu.Unlock() }
func (m *countingMetrics) RecordDropped(n int)  { m.mu.Lock(); m.dropped += n; m.mu.Unlock() }
func (m *countingMetrics) RecordAppendError()   { m.mu.Lock(); m.appendError++; m.mu.Unlock() }
func (m *countingMetrics) SetQueueDepth(int)    {}

// blockingStore blocks Append until released.
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, changes []Change) error {
	<-s.release
	return s.MemoryStore.Append(ctx, changes)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Append(context.Context, []Change) error { return errors.New("disk full") }

func TestRecorder_RecordsRegistryChanges(t *testing.T) {
	reg := registry.New(registry.WithLogger(logging.Discard()))
	require.NoError(t, reg.Set("preexisting", policy.State{Mode: policy.ModeFull}))

	store := NewMemoryStore()
	metrics := &countingMetrics{}
	rec := NewRecorder(store, nil, WithMetrics(metrics), WithLogger(logging.Discard()))
	rec.Attach(reg)

	require.NoError(t, reg.Set("a", policy.State{Mode: policy.ModeFull}))
	_, _, err := reg.Update("a", policy.PatchMode(policy.ModeReadOnly))
	require.NoError(t, err)
	reg.Remove("preexisting")
	reg.Remove("missing") // publishes an identical snapshot

	require.NoError(t, rec.Close())

	got, err := store.Query(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 3, "baseline is not recorded and no-op publishes yield nothing")

	assert.Equal(t, "preexisting", got[0].PolicyID)
	assert.Equal(t, OpRemove, got[0].Op)
	assert.Equal(t, policy.ModeReadOnly, got[1].Mode)
	assert.Equal(t, policy.ModeFull, got[1].PreviousMode)
	assert.Equal(t, OpSet, got[2].Op)

	states, err := store.States(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]policy.State{"a": {Mode: policy.ModeReadOnly}}, states)

	assert.Equal(t, 3, metrics.appended)
	assert.Zero(t, rec.Dropped())
	assert.Equal(t, 0, reg.Subscribers(), "close unsubscribes")
}

// fillQueue blocks the worker on the first batch, fills the one-slot queue
// with the second and makes the remaining sets drop.
func fillQueue(t *testing.T, reg *registry.Registry, rec *Recorder, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, reg.Set(id, policy.State{Mode: policy.ModeFull}))
		if i == 0 {
			require.Eventually(t, func() bool { return len(rec.batches) == 0 }, time.Second, time.Millisecond)
		}
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	metrics := &countingMetrics{}
	rec := NewRecorder(store, &RecorderConfig{AsyncBuffer: 1, WriteTimeout: time.Second},
		WithMetrics(metrics), WithLogger(logging.Discard()))

	reg := registry.New(registry.WithLogger(logging.Discard()))
	rec.Attach(reg)

	fillQueue(t, reg, rec, "a", "b", "c", "d")

	// c is dropped alone, then d is dropped together with the still
	// unrecorded c.
	assert.Equal(t, int64(3), rec.Dropped())
	assert.Equal(t, 3, metrics.dropped)

	close(store.release)
	require.NoError(t, rec.Close())

	states, err := store.States(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reg.Snapshot().Map(), states, "close records what the drops left out")

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestRecorder_NextBatchCarriesDroppedChanges(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	rec := NewRecorder(store, &RecorderConfig{AsyncBuffer: 1, WriteTimeout: time.Second},
		WithLogger(logging.Discard()))
	t.Cleanup(func() { rec.Close() })

	reg := registry.New(registry.WithLogger(logging.Discard()))
	rec.Attach(reg)

	fillQueue(t, reg, rec, "a", "b", "c")
	require.Equal(t, int64(1), rec.Dropped())

	close(store.release)
	require.Eventually(t, func() bool {
		n, _ := store.Count(context.Background())
		return n == 2
	}, time.Second, time.Millisecond)

	require.NoError(t, reg.Set("d", policy.State{Mode: policy.ModeReadOnly}))
	require.Eventually(t, func() bool {
		states, err := store.States(context.Background())
		return err == nil && assert.ObjectsAreEqual(reg.Snapshot().Map(), states)
	}, time.Second, time.Millisecond)

	changes, err := store.Query(context.Background(), &Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, changes[0].Version, changes[1].Version, "c and d share one batch")
}

func TestRecorder_ObserveAfterCloseIsCounted(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, nil, WithLogger(logging.Discard()))

	reg := registry.New(registry.WithLogger(logging.Discard()))
	rec.Observe(reg.Snapshot())
	require.NoError(t, rec.Close())

	require.NoError(t, reg.Set("a", policy.State{Mode: policy.ModeFull}))
	rec.Observe(reg.Snapshot())

	assert.Equal(t, int64(1), rec.Dropped())
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecorder_AppendErrorIsCounted(t *testing.T) {
	metrics := &countingMetrics{}
	rec := NewRecorder(failingStore{NewMemoryStore()}, nil, WithMetrics(metrics), WithLogger(logging.Discard()))
	reg := registry.New(registry.WithLogger(logging.Discard()))
	rec.Attach(reg)

	require.NoError(t, reg.Set("a", policy.State{Mode: policy.ModeFull}))
	require.NoError(t, rec.Close())

	assert.Equal(t, 1, metrics.appendError)
	assert.Equal(t, 0, metrics.appended)
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	rec := NewRecorder(NewMemoryStore(), nil, WithLogger(logging.Discard()))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	reg := registry.New(registry.WithLogger(logging.Discard()))

	n, err := Restore(ctx, store, reg)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(0), reg.Snapshot().Version(), "empty journal does not publish")

	require.NoError(t, store.Append(ctx, []Change{
		change(1, "a", OpSet, policy.ModeFull, time.Now()),
		change(2, "b", OpSet, policy.ModeReadOnly, time.Now()),
	}))

	n, err = Restore(ctx, store, reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(1), reg.Snapshot().Version())
	assert.Equal(t, map[string]policy.State{
		"a": {Mode: policy.ModeFull},
		"b": {Mode: policy.ModeReadOnly},
	}, reg.Snapshot().Map())
}

func TestRestore_StoreError(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())
	_, err := Restore(context.Background(), store, registry.New())
	assert.ErrorIs(t, err, ErrClosed)
}
