// Package health runs named readiness checks.
//
// A Checker holds check functions registered by the components that own a
// dependency (the journal store, for example). Check runs them concurrently,
// each bounded by the checker timeout, and reports "ready" only when every
// check passed:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("journal", func(ctx context.Context) error {
//	    _, err := store.Count(ctx)
//	    return err
//	})
//	report := checker.Check(ctx)
//
// Liveness needs no checks and is served directly by the HTTP layer.
package health
