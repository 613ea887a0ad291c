/*
Package registry provides the observable policy registry: a mapping from policy
identifier to policy.State that notifies subscribers whenever it changes.

# Snapshots

Every write publishes a new immutable Snapshot. Readers call Registry.Snapshot,
which never blocks on writers, and can keep the returned value for as long as
they like; later writes never modify it.

	reg := registry.New()
	_ = reg.Set("policyA", policy.State{Mode: policy.ModeDisabled})
	_, _, _ = reg.Update("policyA", policy.PatchMode(policy.ModeFull))
	snap := reg.Snapshot() // {"policyA": {mode: full}}

# Subscriptions

Subscribe delivers the current snapshot immediately and then one snapshot per
change, in registration order. The returned Unsubscribe is idempotent.

	unsubscribe := reg.Subscribe(func(s registry.Snapshot) {
		log.Printf("version %d: %d policies", s.Version(), s.Len())
	})
	defer unsubscribe()

Observers run synchronously on the writer's goroutine while the registry's
write lock is held. They may unsubscribe, but must not call Set, Update,
Remove, Replace, Apply or Subscribe; hand the snapshot to another goroutine if
a reaction needs to write.

# Missing entries

Update on an identifier that is not present is a no-op: it returns false and
publishes nothing. Remove always publishes, whether or not the entry existed.
*/
package registry
