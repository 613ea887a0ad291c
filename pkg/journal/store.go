package journal

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/policyhub/pkg/policy"
)

// DefaultQueryLimit applies when a query does not set a limit.
const DefaultQueryLimit = 100

// MaxQueryLimit caps the number of changes a single query returns.
const MaxQueryLimit = 10000

// Query selects changes from a store. Results are newest first.
type Query struct {
	PolicyID string     `json:"policy_id,omitempty"`
	Op       Op         `json:"op,omitempty"`
	Since    *time.Time `json:"since,omitempty"` // inclusive
	Until    *time.Time `json:"until,omitempty"` // exclusive
	Limit    int        `json:"limit,omitempty"`
}

// Validate checks the query and fills in the default limit.
func (q *Query) Validate() error {
	if q.Op != "" && !q.Op.Valid() {
		return fmt.Errorf("unknown op %q", q.Op)
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Since != nil && q.Until != nil && !q.Until.After(*q.Since) {
		return fmt.Errorf("until must be after since")
	}
	return nil
}

func (q *Query) matches(c *Change) bool {
	if q.PolicyID != "" && c.PolicyID != q.PolicyID {
		return false
	}
	if q.Op != "" && c.Op != q.Op {
		return false
	}
	if q.Since != nil && c.RecordedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !c.RecordedAt.Before(*q.Until) {
		return false
	}
	return true
}

// Store persists changes. Implementations must be safe for concurrent use.
type Store interface {
	// Append stores changes in order and folds them into the materialized
	// state. The batch is applied atomically.
	Append(ctx context.Context, changes []Change) error

	// States returns the materialized state after every appended change.
	States(ctx context.Context) (map[string]policy.State, error)

	// Query returns matching changes, newest first.
	Query(ctx context.Context, q *Query) ([]Change, error)

	// Count returns the number of stored changes.
	Count(ctx context.Context) (int64, error)

	// DeleteBefore removes changes recorded before t. The materialized
	// state is not affected.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)

	// Trim removes the oldest changes until at most max remain.
	Trim(ctx context.Context, max int64) (int64, error)

	// Close releases the store.
	Close() error
}
