package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/policy"
)

func state(m policy.Mode) policy.State {
	return policy.State{Mode: m}
}

// recorder collects every snapshot an observer receives.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestNew(t *testing.T) {
	reg := New()

	snap := reg.Snapshot()
	assert.Equal(t, 0, snap.Len())
	assert.Equal(t, uint64(0), snap.Version())
	assert.Equal(t, 0, reg.Subscribers())
}

func TestRegistry_SetThenGet(t *testing.T) {
	for _, m := range policy.Modes() {
		t.Run(string(m), func(t *testing.T) {
			reg := New()
			require.NoError(t, reg.Set("policy", state(m)))

			got, ok := reg.Snapshot().Get("policy")
			require.True(t, ok)
			assert.Equal(t, m, got.Mode)
		})
	}
}

func TestRegistry_SetRejectsInvalidInput(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Subscribe(rec.observe)

	err := reg.Set("p", state("superuser"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, policy.ErrInvalidMode))
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "p", regErr.PolicyID)
	assert.Equal(t, OpSet, regErr.Operation)

	err = reg.Set("", state(policy.ModeFull))
	require.ErrorAs(t, err, &regErr)

	assert.Equal(t, 1, rec.count(), "rejected writes must not notify")
	assert.Equal(t, uint64(0), reg.Snapshot().Version())
}

func TestRegistry_UpdateScenario(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Set("policyA", state(policy.ModeDisabled)))
	st, ok, err := reg.Update("policyA", policy.PatchMode(policy.ModeFull))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, state(policy.ModeFull), st)

	assert.Equal(t, map[string]policy.State{"policyA": state(policy.ModeFull)}, reg.Snapshot().Map())
}

func TestRegistry_UpdateMissingIsSilentNoop(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Subscribe(rec.observe)

	_, ok, err := reg.Update("ghost", policy.PatchMode(policy.ModeFull))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, reg.Snapshot().Has("ghost"))
	assert.Equal(t, 1, rec.count())
}

func TestRegistry_UpdateInvalidPatch(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Set("p", state(policy.ModeReadOnly)))

	_, ok, err := reg.Update("p", policy.PatchMode("root"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, policy.ErrInvalidMode)

	got, _ := reg.Get("p")
	assert.Equal(t, policy.ModeReadOnly, got.Mode)
}

func TestRegistry_RemoveScenario(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Set("p1", state(policy.ModeReadOnly)))
	require.NoError(t, reg.Set("p2", state(policy.ModeFull)))
	assert.True(t, reg.Remove("p1"))

	snap := reg.Snapshot()
	assert.False(t, snap.Has("p1"))
	assert.Equal(t, map[string]policy.State{"p2": state(policy.ModeFull)}, snap.Map())
}

func TestRegistry_RemoveMissingStillNotifies(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Subscribe(rec.observe)

	assert.False(t, reg.Remove("nothing"))
	require.Equal(t, 2, rec.count())
	assert.Equal(t, 0, rec.all()[1].Len())
}

func TestRegistry_SubscribeDeliversCurrentSnapshot(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Subscribe(rec.observe)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, 0, rec.all()[0].Len())

	require.NoError(t, reg.Set("a", state(policy.ModeFull)))

	late := &recorder{}
	reg.Subscribe(late.observe)
	require.Equal(t, 1, late.count())
	assert.True(t, late.all()[0].Has("a"))
}

func TestRegistry_OneNotificationPerWriteInRegistrationOrder(t *testing.T) {
	reg := New()

	var mu sync.Mutex
	var calls []string
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("obs-%d", i)
		reg.Subscribe(func(s Snapshot) {
			mu.Lock()
			calls = append(calls, fmt.Sprintf("%s@%d", name, s.Version()))
			mu.Unlock()
		})
	}

	mu.Lock()
	calls = nil
	mu.Unlock()

	require.NoError(t, reg.Set("p", state(policy.ModeDisabled)))
	_, _, err := reg.Update("p", policy.PatchMode(policy.ModeFull))
	require.NoError(t, err)
	reg.Remove("p")

	assert.Equal(t, []string{
		"obs-0@1", "obs-1@1", "obs-2@1",
		"obs-0@2", "obs-1@2", "obs-2@2",
		"obs-0@3", "obs-1@3", "obs-2@3",
	}, calls)
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	reg := New()
	rec := &recorder{}
	other := &recorder{}

	unsubscribe := reg.Subscribe(rec.observe)
	reg.Subscribe(other.observe)
	assert.Equal(t, 2, reg.Subscribers())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, reg.Subscribers())

	require.NoError(t, reg.Set("p", state(policy.ModeFull)))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 2, other.count())
}

func TestRegistry_UnsubscribeDuringFanOut(t *testing.T) {
	reg := New()

	var unsubscribeSecond Unsubscribe
	second := &recorder{}

	reg.Subscribe(func(s Snapshot) {
		if s.Version() == 1 && unsubscribeSecond != nil {
			unsubscribeSecond()
		}
	})
	unsubscribeSecond = reg.Subscribe(second.observe)

	require.NoError(t, reg.Set("p", state(policy.ModeFull)))
	assert.Equal(t, 1, second.count(), "observer removed mid fan-out must not be called")
}

func TestRegistry_SnapshotsAreImmutable(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Set("p", state(policy.ModeDisabled)))

	before := reg.Snapshot()
	copied := before.Map()
	copied["injected"] = state(policy.ModeFull)

	require.NoError(t, reg.Set("p", state(policy.ModeFull)))
	reg.Remove("p")

	got, ok := before.Get("p")
	require.True(t, ok)
	assert.Equal(t, policy.ModeDisabled, got.Mode)
	assert.False(t, before.Has("injected"))
	assert.False(t, reg.Snapshot().Has("injected"))
}

func TestRegistry_Replace(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Subscribe(rec.observe)
	require.NoError(t, reg.Set("old", state(policy.ModeFull)))

	require.NoError(t, reg.Replace(map[string]policy.State{
		"a": state(policy.ModeReadOnly),
		"b": state(policy.ModeDisabled),
	}))
	assert.Equal(t, []string{"a", "b"}, reg.Snapshot().IDs())
	assert.Equal(t, 3, rec.count())

	err := reg.Replace(map[string]policy.State{"c": state("wrong")})
	assert.ErrorIs(t, err, policy.ErrInvalidMode)
	assert.Equal(t, []string{"a", "b"}, reg.Snapshot().IDs())
}

func TestRegistry_Apply(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Set("keep", state(policy.ModeFull)))
	require.NoError(t, reg.Set("drop", state(policy.ModeFull)))

	rec := &recorder{}
	reg.Subscribe(rec.observe)

	err := reg.Apply(func(tx *Txn) error {
		if err := tx.Set("new", state(policy.ModeReadOnly)); err != nil {
			return err
		}
		tx.Remove("drop")
		ok, err := tx.Update("keep", policy.PatchMode(policy.ModeDisabled))
		if !ok {
			return errors.New("keep should exist")
		}
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rec.count(), "a transaction publishes once")
	assert.Equal(t, map[string]policy.State{
		"keep": state(policy.ModeDisabled),
		"new":  state(policy.ModeReadOnly),
	}, reg.Snapshot().Map())
}

func TestRegistry_ApplyErrorDiscardsWrites(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Subscribe(rec.observe)

	boom := errors.New("boom")
	err := reg.Apply(func(tx *Txn) error {
		_ = tx.Set("p", state(policy.ModeFull))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, reg.Snapshot().Len())
	assert.Equal(t, 1, rec.count())
}

func TestRegistry_ApplyWithoutWritesDoesNotPublish(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Subscribe(rec.observe)

	require.NoError(t, reg.Apply(func(tx *Txn) error {
		_, _ = tx.Get("x")
		tx.Remove("x")
		return nil
	}))
	assert.Equal(t, 1, rec.count())
}

func TestRegistry_ObserverPanicDoesNotStopFanOut(t *testing.T) {
	reg := New()
	reg.Subscribe(func(s Snapshot) {
		if s.Version() > 0 {
			panic("observer bug")
		}
	})
	rec := &recorder{}
	reg.Subscribe(rec.observe)

	require.NoError(t, reg.Set("p", state(policy.ModeFull)))
	assert.Equal(t, 2, rec.count())
}

func TestRegistry_ConcurrentWritersDeliverOrderedVersions(t *testing.T) {
	reg := New()

	var mu sync.Mutex
	var versions []uint64
	reg.Subscribe(func(s Snapshot) {
		mu.Lock()
		versions = append(versions, s.Version())
		mu.Unlock()
	})

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%d", w, i%5)
				_ = reg.Set(id, state(policy.Modes()[i%3]))
				_ = reg.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, versions, writers*perWriter+1)
	for i, v := range versions {
		assert.Equal(t, uint64(i), v)
	}
	assert.Equal(t, writers*5, reg.Snapshot().Len())
}

type fakeInstrumentation struct {
	mu          sync.Mutex
	mutations   map[string]int
	entries     int
	subscribers int
	fanOuts     int
}

func (f *fakeInstrumentation) RecordMutation(op, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutations == nil {
		f.mutations = map[string]int{}
	}
	f.mutations[op+"/"+outcome]++
}

func (f *fakeInstrumentation) RecordFanOut(int, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fanOuts++
}

func (f *fakeInstrumentation) SetEntries(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = n
}

func (f *fakeInstrumentation) SetSubscribers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = n
}

func TestRegistry_Instrumentation(t *testing.T) {
	instr := &fakeInstrumentation{}
	reg := New(WithInstrumentation(instr))

	unsubscribe := reg.Subscribe(func(Snapshot) {})
	require.NoError(t, reg.Set("a", state(policy.ModeFull)))
	require.NoError(t, reg.Set("b", state(policy.ModeFull)))
	_, _, _ = reg.Update("missing", policy.PatchMode(policy.ModeFull))
	_ = reg.Set("c", state("bad"))
	reg.Remove("a")

	assert.Equal(t, 2, instr.mutations["set/applied"])
	assert.Equal(t, 1, instr.mutations["set/rejected"])
	assert.Equal(t, 1, instr.mutations["update/noop"])
	assert.Equal(t, 1, instr.mutations["remove/applied"])
	assert.Equal(t, 1, instr.entries)
	assert.Equal(t, 1, instr.subscribers)
	assert.Equal(t, 3, instr.fanOuts)

	unsubscribe()
	assert.Equal(t, 0, instr.subscribers)
}
