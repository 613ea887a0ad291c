package handlers

import (
	"sync/atomic"

	"mercator-hq/policyhub/pkg/policy/registry"
)

// snapshotQueue is a bounded per-client queue. push never blocks: when the
// queue is full the oldest snapshot is discarded.
type snapshotQueue struct {
	ch    chan registry.Snapshot
	drops atomic.Int64
}

func newSnapshotQueue(size int) *snapshotQueue {
	return &snapshotQueue{ch: make(chan registry.Snapshot, size)}
}

// push is called by the registry with its write lock held, so pushes are
// never concurrent with each other.
func (q *snapshotQueue) push(snap registry.Snapshot) {
	for {
		select {
		case q.ch <- snap:
			return
		default:
		}
		select {
		case <-q.ch:
			q.drops.Add(1)
		default:
		}
	}
}

func (q *snapshotQueue) dropped() int64 {
	return q.drops.Load()
}
