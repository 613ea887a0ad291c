package journal

import (
	"context"
	"fmt"

	"mercator-hq/policyhub/pkg/policy/registry"
)

// Restore loads the materialized state from store into reg with a single
// Replace. An empty journal leaves the registry untouched. It returns the
// number of restored entries.
func Restore(ctx context.Context, store Store, reg *registry.Registry) (int, error) {
	states, err := store.States(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read journal state: %w", err)
	}
	if len(states) == 0 {
		return 0, nil
	}
	if err := reg.Replace(states); err != nil {
		return 0, fmt.Errorf("failed to restore journal state: %w", err)
	}
	return len(states), nil
}
