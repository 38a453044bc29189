package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rtime"
)

func TestDedupSeenOnce(t *testing.T) {
	d := NewDedup(8)
	tag := rtime.Tag{Time: 100}

	require.False(t, d.Seen(graph.ReactionID(1), tag))
	require.True(t, d.Seen(graph.ReactionID(1), tag))
}

func TestDedupDistinguishesTagsAndReactions(t *testing.T) {
	d := NewDedup(8)
	require.False(t, d.Seen(graph.ReactionID(1), rtime.Tag{Time: 100}))
	require.False(t, d.Seen(graph.ReactionID(2), rtime.Tag{Time: 100}))
	require.False(t, d.Seen(graph.ReactionID(1), rtime.Tag{Time: 200}))
}

func TestDedupEvictsUnderPressure(t *testing.T) {
	d := NewDedup(2)
	require.False(t, d.Seen(graph.ReactionID(1), rtime.Tag{Time: 1}))
	require.False(t, d.Seen(graph.ReactionID(2), rtime.Tag{Time: 2}))
	require.False(t, d.Seen(graph.ReactionID(3), rtime.Tag{Time: 3})) // evicts entry for reaction 1
	require.False(t, d.Seen(graph.ReactionID(1), rtime.Tag{Time: 1}))
}
