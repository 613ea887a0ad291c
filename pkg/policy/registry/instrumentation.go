package registry

import "time"

// Operation names reported to Instrumentation.
const (
	OpSet     = "set"
	OpUpdate  = "update"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpApply   = "apply"
)

// Outcomes reported to Instrumentation.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
)

// Instrumentation receives measurements from the registry. Implementations
// must be safe for concurrent use and must not call back into the registry.
type Instrumentation interface {
	// RecordMutation counts a mutating call by operation and outcome.
	RecordMutation(op, outcome string)

	// RecordFanOut observes one notification round.
	RecordFanOut(observers int, duration time.Duration)

	// SetEntries reports the number of entries after a publish.
	SetEntries(n int)

	// SetSubscribers reports the number of active subscriptions.
	SetSubscribers(n int)
}

type noopInstrumentation struct{}

func (noopInstrumentation) RecordMutation(string, string) {}
func (noopInstrumentation) RecordFanOut(int, time.Duration) {}
func (noopInstrumentation) SetEntries(int) {}
func (noopInstrumentation) SetSubscribers(int) {}
