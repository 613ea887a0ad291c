package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/policyhub/pkg/policy"
)

// Observer receives every snapshot published by the registry.
type Observer func(Snapshot)

// Unsubscribe removes an observer. Calling it more than once is a no-op.
type Unsubscribe func()

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for observer failures and debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithInstrumentation attaches a metrics sink.
func WithInstrumentation(instr Instrumentation) Option {
	return func(r *Registry) {
		if instr != nil {
			r.instr = instr
		}
	}
}

// Registry is the observable policy-state registry. It is safe for
// concurrent use; writes and their notifications are serialized, reads are
// lock-free.
type Registry struct {
	// mu serializes writers and the fan-out that follows each write.
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	// subsMu guards subs only, so an observer can unsubscribe during fan-out.
	subsMu    sync.Mutex
	subs      []*subscription
	nextSubID uint64

	logger *slog.Logger
	instr  Instrumentation
}

type subscription struct {
	id       uint64
	observer Observer
	active   atomic.Bool
}

// New creates an empty registry at version 0.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger: slog.Default().With("component", "policy.registry"),
		instr:  noopInstrumentation{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(&Snapshot{states: map[string]policy.State{}})
	return r
}

// Snapshot returns the current mapping. It never blocks.
func (r *Registry) Snapshot() Snapshot {
	return *r.current.Load()
}

// Get is a shorthand for Snapshot().Get(id).
func (r *Registry) Get(id string) (policy.State, bool) {
	return r.Snapshot().Get(id)
}

// Set inserts or replaces the entry for id and publishes the new mapping.
func (r *Registry) Set(id string, state policy.State) error {
	if err := validateEntry(OpSet, id, state); err != nil {
		r.instr.RecordMutation(OpSet, OutcomeRejected)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cloneCurrent()
	next[id] = state
	r.publish(next)
	r.instr.RecordMutation(OpSet, OutcomeApplied)

	r.logger.Debug("policy state set", "policy_id", id, "mode", state.Mode)
	return nil
}

// Update applies patch to the existing entry for id and returns the state it
// stored. If id is absent nothing happens and Update returns false without
// notifying anyone.
func (r *Registry) Update(id string, patch policy.Patch) (policy.State, bool, error) {
	if err := patch.Validate(); err != nil {
		r.instr.RecordMutation(OpUpdate, OutcomeRejected)
		return policy.State{}, false, &RegistryError{PolicyID: id, Operation: OpUpdate, Message: "invalid patch", Cause: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.current.Load().Get(id)
	if !ok {
		r.instr.RecordMutation(OpUpdate, OutcomeNoop)
		r.logger.Debug("update skipped, policy not present", "policy_id", id)
		return policy.State{}, false, nil
	}

	updated := patch.ApplyTo(existing)
	next := r.cloneCurrent()
	next[id] = updated
	r.publish(next)
	r.instr.RecordMutation(OpUpdate, OutcomeApplied)

	return updated, true, nil
}

// Remove deletes the entry for id if present and publishes the resulting
// mapping. It reports whether the entry existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cloneCurrent()
	_, existed := next[id]
	delete(next, id)
	r.publish(next)

	if existed {
		r.instr.RecordMutation(OpRemove, OutcomeApplied)
	} else {
		r.instr.RecordMutation(OpRemove, OutcomeNoop)
	}
	return existed
}

// Replace publishes states as the complete new mapping in a single
// notification. Every entry is validated first; on error nothing changes.
func (r *Registry) Replace(states map[string]policy.State) error {
	for id, st := range states {
		if err := validateEntry(OpReplace, id, st); err != nil {
			r.instr.RecordMutation(OpReplace, OutcomeRejected)
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]policy.State, len(states))
	maps.Copy(next, states)
	r.publish(next)
	r.instr.RecordMutation(OpReplace, OutcomeApplied)

	return nil
}

// Apply runs fn against a private copy of the mapping. If fn returns nil and
// performed at least one write, the copy is published in a single
// notification. If fn returns an error nothing is published.
func (r *Registry) Apply(fn func(tx *Txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &Txn{states: r.cloneCurrent()}
	if err := fn(tx); err != nil {
		r.instr.RecordMutation(OpApply, OutcomeRejected)
		return err
	}
	if !tx.dirty {
		r.instr.RecordMutation(OpApply, OutcomeNoop)
		return nil
	}

	r.publish(tx.states)
	r.instr.RecordMutation(OpApply, OutcomeApplied)
	return nil
}

// Subscribe registers observer. It is called with the current snapshot before
// Subscribe returns and then once per published change.
func (r *Registry) Subscribe(observer Observer) Unsubscribe {
	if observer == nil {
		return func() {}
	}

	// Holding mu guarantees no publish slips in between the initial delivery
	// and the registration.
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subsMu.Lock()
	r.nextSubID++
	sub := &subscription{id: r.nextSubID, observer: observer}
	sub.active.Store(true)
	r.subs = append(r.subs, sub)
	count := len(r.subs)
	r.subsMu.Unlock()

	r.instr.SetSubscribers(count)
	r.notify(sub, *r.current.Load())

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(sub) })
	}
}

// Subscribers returns the number of active subscriptions.
func (r *Registry) Subscribers() int {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	return len(r.subs)
}

func (r *Registry) unsubscribe(sub *subscription) {
	sub.active.Store(false)

	r.subsMu.Lock()
	r.subs = slices.DeleteFunc(r.subs, func(s *subscription) bool { return s.id == sub.id })
	count := len(r.subs)
	r.subsMu.Unlock()

	r.instr.SetSubscribers(count)
}

// cloneCurrent copies the live mapping. Must be called with mu held.
func (r *Registry) cloneCurrent() map[string]policy.State {
	return maps.Clone(r.current.Load().states)
}

// publish stores next as the new snapshot and notifies every active observer
// in registration order. Must be called with mu held; next must not be
// modified afterwards.
func (r *Registry) publish(next map[string]policy.State) {
	if next == nil {
		next = map[string]policy.State{}
	}
	snap := &Snapshot{states: next, version: r.current.Load().version + 1}
	r.current.Store(snap)
	r.instr.SetEntries(len(next))

	r.subsMu.Lock()
	subs := slices.Clone(r.subs)
	r.subsMu.Unlock()

	start := time.Now()
	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		r.notify(sub, *snap)
	}
	r.instr.RecordFanOut(len(subs), time.Since(start))
}

// notify calls a single observer, isolating the registry from its panics.
func (r *Registry) notify(sub *subscription, snap Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("policy observer panicked",
				"subscription_id", sub.id,
				"version", snap.version,
				"panic", fmt.Sprint(rec),
			)
		}
	}()
	sub.observer(snap)
}

func validateEntry(op, id string, state policy.State) error {
	if id == "" {
		return &RegistryError{Operation: op, Message: "policy id cannot be empty"}
	}
	if err := state.Validate(); err != nil {
		return &RegistryError{PolicyID: id, Operation: op, Message: "invalid state", Cause: err}
	}
	return nil
}
