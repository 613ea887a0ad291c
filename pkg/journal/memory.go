package journal

import (
	"context"
	"maps"
	"sync"
	"time"

	"mercator-hq/policyhub/pkg/policy"
)

// MemoryStore keeps the journal in process memory. History is lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	changes []Change
	states  map[string]policy.State
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]policy.State)}
}

// Append stores changes and updates the materialized state.
func (s *MemoryStore) Append(ctx context.Context, changes []Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageError("memory", "append", ErrClosed)
	}
	s.changes = append(s.changes, changes...)
	apply(s.states, changes)
	return nil
}

// States returns a copy of the materialized state.
func (s *MemoryStore) States(ctx context.Context) (map[string]policy.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageError("memory", "states", ErrClosed)
	}
	return maps.Clone(s.states), nil
}

// Query returns matching changes, newest first.
func (s *MemoryStore) Query(ctx context.Context, q *Query) ([]Change, error) {
	if q == nil {
		q = &Query{}
	}
	if err := q.Validate(); err != nil {
		return nil, NewStorageError("memory", "query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageError("memory", "query", ErrClosed)
	}

	results := []Change{}
	for i := len(s.changes) - 1; i >= 0 && len(results) < q.Limit; i-- {
		if q.matches(&s.changes[i]) {
			results = append(results, s.changes[i])
		}
	}
	return results, nil
}

// Count returns the number of stored changes.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, NewStorageError("memory", "count", ErrClosed)
	}
	return int64(len(s.changes)), nil
}

// DeleteBefore removes changes recorded before t.
func (s *MemoryStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.changes[:0]
	for _, c := range s.changes {
		if !c.RecordedAt.Before(t) {
			kept = append(kept, c)
		}
	}
	deleted := int64(len(s.changes) - len(kept))
	clear(s.changes[len(kept):])
	s.changes = kept
	return deleted, nil
}

// Trim keeps only the newest max changes.
func (s *MemoryStore) Trim(ctx context.Context, max int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := int64(len(s.changes)) - max
	if max < 0 || excess <= 0 {
		return 0, nil
	}
	s.changes = append([]Change(nil), s.changes[excess:]...)
	return excess, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
