package registry

import (
	"maps"
	"slices"

	"mercator-hq/policyhub/pkg/policy"
)

// Txn is a batch of writes applied by Registry.Apply. It is only valid inside
// the callback that received it.
type Txn struct {
	states map[string]policy.State
	dirty  bool
}

// Get returns the entry as seen by the transaction so far.
func (t *Txn) Get(id string) (policy.State, bool) {
	st, ok := t.states[id]
	return st, ok
}

// IDs returns the identifiers visible to the transaction in sorted order.
func (t *Txn) IDs() []string {
	return slices.Sorted(maps.Keys(t.states))
}

// Set inserts or replaces an entry.
func (t *Txn) Set(id string, state policy.State) error {
	if err := validateEntry(OpSet, id, state); err != nil {
		return err
	}
	t.states[id] = state
	t.dirty = true
	return nil
}

// Update patches an existing entry. It returns false if id is absent.
func (t *Txn) Update(id string, patch policy.Patch) (bool, error) {
	if err := patch.Validate(); err != nil {
		return false, &RegistryError{PolicyID: id, Operation: OpUpdate, Message: "invalid patch", Cause: err}
	}
	existing, ok := t.states[id]
	if !ok {
		return false, nil
	}
	t.states[id] = patch.ApplyTo(existing)
	t.dirty = true
	return true, nil
}

// Remove deletes an entry and reports whether it existed.
func (t *Txn) Remove(id string) bool {
	_, ok := t.states[id]
	if ok {
		delete(t.states, id)
		t.dirty = true
	}
	return ok
}
