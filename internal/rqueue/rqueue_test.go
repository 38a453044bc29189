package rqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorcore/engine/internal/graph"
)

func buildArena(levels ...int) *graph.Arena {
	a := graph.NewArena()
	reactor := a.AddReactor("r")
	for _, l := range levels {
		a.AddReaction(reactor, graph.Reaction{Level: l})
	}
	return a
}

func TestPopMinLevelDrainsLowestLevelOnly(t *testing.T) {
	a := buildArena(2, 0, 1, 0)
	q := New(a)
	for i := 0; i < 4; i++ {
		q.Insert(graph.ReactionID(i))
	}

	batch := q.PopMinLevel()
	require.ElementsMatch(t, []graph.ReactionID{1, 3}, batch)

	batch = q.PopMinLevel()
	require.Equal(t, []graph.ReactionID{2}, batch)

	batch = q.PopMinLevel()
	require.Equal(t, []graph.ReactionID{0}, batch)

	require.True(t, q.IsEmpty())
}

func TestPopMinLevelIgnoresDeadlineWhenGroupingLevels(t *testing.T) {
	a := graph.NewArena()
	reactor := a.AddReactor("r")
	a.AddReaction(reactor, graph.Reaction{Level: 2}) // no deadline: priority 2
	a.AddReaction(reactor, graph.Reaction{Level: 0, Deadline: 10 * time.Millisecond})

	q := New(a)
	q.Insert(0)
	q.Insert(1)

	batch := q.PopMinLevel()
	require.Equal(t, []graph.ReactionID{1}, batch, "level 0 must drain before level 2 regardless of deadline")

	batch = q.PopMinLevel()
	require.Equal(t, []graph.ReactionID{0}, batch)
}

func TestInsertIsIdempotent(t *testing.T) {
	a := buildArena(0)
	q := New(a)
	q.Insert(0)
	q.Insert(0)
	require.Equal(t, 1, q.Size())
}
