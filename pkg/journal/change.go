package journal

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/registry"
)

// Op is the kind of an entry-level change.
type Op string

const (
	// OpSet records an insert or a mode change.
	OpSet Op = "set"
	// OpRemove records a deletion.
	OpRemove Op = "remove"
)

// Valid reports whether op is a known operation.
func (op Op) Valid() bool {
	return op == OpSet || op == OpRemove
}

// Change is one entry-level difference between two consecutive snapshots.
type Change struct {
	ID           uuid.UUID   `json:"id"`
	Version      uint64      `json:"version"`
	PolicyID     string      `json:"policy_id"`
	Op           Op          `json:"op"`
	Mode         policy.Mode `json:"mode,omitempty"`
	PreviousMode policy.Mode `json:"previous_mode,omitempty"`
	RecordedAt   time.Time   `json:"recorded_at"`
}

// Diff returns the changes that turn prev into next, ordered by policy id.
// Identical snapshots yield nil.
func Diff(prev, next registry.Snapshot) []Change {
	now := time.Now().UTC()
	var changes []Change

	for _, id := range next.IDs() {
		st, _ := next.Get(id)
		old, existed := prev.Get(id)
		if existed && old == st {
			continue
		}
		c := Change{
			ID:         uuid.New(),
			Version:    next.Version(),
			PolicyID:   id,
			Op:         OpSet,
			Mode:       st.Mode,
			RecordedAt: now,
		}
		if existed {
			c.PreviousMode = old.Mode
		}
		changes = append(changes, c)
	}

	for _, id := range prev.IDs() {
		if next.Has(id) {
			continue
		}
		old, _ := prev.Get(id)
		changes = append(changes, Change{
			ID:           uuid.New(),
			Version:      next.Version(),
			PolicyID:     id,
			Op:           OpRemove,
			PreviousMode: old.Mode,
			RecordedAt:   now,
		})
	}

	return changes
}

// apply folds changes into a materialized state map.
func apply(states map[string]policy.State, changes []Change) {
	for _, c := range changes {
		switch c.Op {
		case OpSet:
			states[c.PolicyID] = policy.State{Mode: c.Mode}
		case OpRemove:
			delete(states, c.PolicyID)
		}
	}
}
