package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/policy/registry"
)

func TestSnapshotQueue_KeepsNewest(t *testing.T) {
	q := newSnapshotQueue(2)
	for v := uint64(1); v <= 5; v++ {
		q.push(registry.NewSnapshot(v, nil))
	}

	require.Len(t, q.ch, 2)
	assert.Equal(t, uint64(4), (<-q.ch).Version())
	assert.Equal(t, uint64(5), (<-q.ch).Version())
	assert.Equal(t, int64(3), q.dropped())
}
