// Package journal records every change published by the policy registry.
//
// A Recorder subscribes to the registry, diffs each snapshot against the one
// before it and hands the resulting Changes to a background writer. Stores
// keep the change history plus the materialized current state, which Restore
// loads back into a registry after a restart.
//
// Two Store implementations are provided: MemoryStore, and SQLStore which
// runs on either the pure Go "sqlite" driver or the cgo "sqlite3" driver.
//
// Registry versions restart at zero with every process, so the history is
// ordered by insertion rather than by version.
package journal
