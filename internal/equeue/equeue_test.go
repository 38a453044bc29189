package equeue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rtime"
)

func TestInsertAndPopAllAtMinTag(t *testing.T) {
	q := New()
	q.Insert(Event{Trigger: 1, Tag: rtime.Tag{Time: 200}})
	q.Insert(Event{Trigger: 2, Tag: rtime.Tag{Time: 100}})
	q.Insert(Event{Trigger: 3, Tag: rtime.Tag{Time: 100}})

	tag, ok := q.PeekTag()
	require.True(t, ok)
	require.Equal(t, int64(100), tag.Time)

	batch := q.PopAllAtMinTag()
	require.Len(t, batch, 2)
	for _, e := range batch {
		require.Equal(t, int64(100), e.Tag.Time)
	}

	tag, ok = q.PeekTag()
	require.True(t, ok)
	require.Equal(t, int64(200), tag.Time)
}

func TestPopAllAtMinTagPreservesInsertionOrder(t *testing.T) {
	q := New()
	q.Insert(Event{Trigger: graph.TriggerID(1), Tag: rtime.Tag{Time: 5}})
	q.Insert(Event{Trigger: graph.TriggerID(2), Tag: rtime.Tag{Time: 5}})

	batch := q.PopAllAtMinTag()
	require.Equal(t, graph.TriggerID(1), batch[0].Trigger)
	require.Equal(t, graph.TriggerID(2), batch[1].Trigger)
}

func TestEmptyQueue(t *testing.T) {
	q := New()
	require.True(t, q.IsEmpty())
	_, ok := q.PeekTag()
	require.False(t, ok)
	require.Nil(t, q.PopAllAtMinTag())
}
