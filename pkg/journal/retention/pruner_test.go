package retention

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/journal"
	"mercator-hq/policyhub/pkg/policy"
)

type recordingMetrics struct {
	pruned map[string]int64
}

func (m *recordingMetrics) RecordPruned(reason string, n int64) {
	if m.pruned == nil {
		m.pruned = map[string]int64{}
	}
	m.pruned[reason] += n
}

func seedStore(t *testing.T, now time.Time, ages ...time.Duration) *journal.MemoryStore {
	t.Helper()
	store := journal.NewMemoryStore()
	var changes []journal.Change
	for i, age := range ages {
		changes = append(changes, journal.Change{
			ID:         uuid.New(),
			Version:    uint64(i + 1),
			PolicyID:   "p",
			Op:         journal.OpSet,
			Mode:       policy.ModeFull,
			RecordedAt: now.Add(-age),
		})
	}
	require.NoError(t, store.Append(context.Background(), changes))
	return store
}

func TestPruner_ByAge(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	store := seedStore(t, now, 40*day, 31*day, 29*day, time.Hour)
	metrics := &recordingMetrics{}

	p := NewPruner(store, &Config{RetentionDays: 30},
		WithClock(func() time.Time { return now }), WithMetrics(metrics))

	deleted, err := p.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, int64(2), metrics.pruned["age"])
	assert.NotContains(t, metrics.pruned, "max_records")

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPruner_ByCount(t *testing.T) {
	now := time.Now()
	store := seedStore(t, now, 5*time.Minute, 4*time.Minute, 3*time.Minute, 2*time.Minute, time.Minute)
	metrics := &recordingMetrics{}

	p := NewPruner(store, &Config{MaxRecords: 3}, WithMetrics(metrics))
	deleted, err := p.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, int64(2), metrics.pruned["max_records"])

	remaining, err := store.Query(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	assert.Equal(t, uint64(5), remaining[0].Version)
	assert.Equal(t, uint64(3), remaining[2].Version)
}

func TestPruner_Disabled(t *testing.T) {
	store := seedStore(t, time.Now(), 1000*24*time.Hour)
	p := NewPruner(store, &Config{})

	deleted, err := p.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPruner_Defaults(t *testing.T) {
	p := NewPruner(journal.NewMemoryStore(), nil)
	assert.Equal(t, *DefaultConfig(), p.Config())
}
