package registry

import (
	"encoding/json"
	"iter"
	"maps"
	"slices"

	"mercator-hq/policyhub/pkg/policy"
)

// Snapshot is an immutable view of the registry at one version.
// The zero value is the empty mapping at version 0.
type Snapshot struct {
	states  map[string]policy.State
	version uint64
}

// NewSnapshot builds a standalone snapshot from states. The map is copied.
func NewSnapshot(version uint64, states map[string]policy.State) Snapshot {
	return Snapshot{states: maps.Clone(states), version: version}
}

// Version is incremented by one on every publish. The empty registry created
// by New is at version 0.
func (s Snapshot) Version() uint64 {
	return s.version
}

// Get returns the state stored for id.
func (s Snapshot) Get(id string) (policy.State, bool) {
	st, ok := s.states[id]
	return st, ok
}

// Has reports whether id is present.
func (s Snapshot) Has(id string) bool {
	_, ok := s.states[id]
	return ok
}

// Len returns the number of entries.
func (s Snapshot) Len() int {
	return len(s.states)
}

// IDs returns all identifiers in sorted order.
func (s Snapshot) IDs() []string {
	return slices.Sorted(maps.Keys(s.states))
}

// All iterates over the entries in sorted identifier order.
func (s Snapshot) All() iter.Seq2[string, policy.State] {
	return func(yield func(string, policy.State) bool) {
		for _, id := range s.IDs() {
			if !yield(id, s.states[id]) {
				return
			}
		}
	}
}

// Map returns a copy of the mapping that the caller may modify freely.
func (s Snapshot) Map() map[string]policy.State {
	out := make(map[string]policy.State, len(s.states))
	maps.Copy(out, s.states)
	return out
}

// snapshotJSON is the wire form shared by the HTTP API and the CLI.
type snapshotJSON struct {
	Version  uint64                  `json:"version"`
	Policies map[string]policy.State `json:"policies"`
}

// MarshalJSON encodes the snapshot as {"version": n, "policies": {...}}.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{Version: s.version, Policies: s.Map()})
}

// UnmarshalJSON decodes the form produced by MarshalJSON. Invalid modes are
// rejected.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.version = raw.Version
	s.states = raw.Policies
	return nil
}
