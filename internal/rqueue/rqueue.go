// Package rqueue implements the per-tag reaction ready set, ordered by
// the composite (deadline, level) priority the scheduler dispatches by.
package rqueue

import (
	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/reactorcore/engine/internal/graph"
)

// Queue holds the reactions ready to run at the current tag, ordered by
// the reaction's encoded (deadline_offset<<16 | level) priority. Insert
// is idempotent: a reaction already marked queued is not re-inserted.
type Queue struct {
	heap    *binaryheap.Heap
	arena   *graph.Arena
	members map[graph.ReactionID]struct{}
}

// New returns an empty reaction queue resolving priorities through arena.
func New(arena *graph.Arena) *Queue {
	q := &Queue{arena: arena, members: make(map[graph.ReactionID]struct{})}
	q.heap = binaryheap.NewWith(func(a, b any) int {
		ra := arena.Reaction(a.(graph.ReactionID))
		rb := arena.Reaction(b.(graph.ReactionID))
		switch {
		case ra.Priority() < rb.Priority():
			return -1
		case ra.Priority() > rb.Priority():
			return 1
		default:
			return 0
		}
	})
	return q
}

// Insert adds reaction r to the ready set if it is not already present.
// The caller is responsible for having transitioned r's status to
// queued first (graph.Reaction.TryQueue); Insert itself only guards
// against double-insertion into the heap.
func (q *Queue) Insert(r graph.ReactionID) {
	if _, exists := q.members[r]; exists {
		return
	}
	q.members[r] = struct{}{}
	q.heap.Push(r)
}

// PopMinLevel removes and returns every ready reaction whose level
// equals the lowest level currently present, preserving the contract
// that level L+1 never starts before all of level L has drained.
//
// The heap orders by (deadline, level) with deadline dominant, so its
// head is not necessarily the lowest-level entry — a startup-triggered
// level-2 reaction with no deadline can sit above a level-0 reaction
// with a tight one. Finding the true minimum level requires draining
// the whole heap rather than trusting Peek.
func (q *Queue) PopMinLevel() []graph.ReactionID {
	if q.heap.Empty() {
		return nil
	}

	var all []graph.ReactionID
	for {
		v, ok := q.heap.Pop()
		if !ok {
			break
		}
		all = append(all, v.(graph.ReactionID))
	}

	minLevel := q.arena.Reaction(all[0]).Level
	for _, rid := range all[1:] {
		if l := q.arena.Reaction(rid).Level; l < minLevel {
			minLevel = l
		}
	}

	var batch []graph.ReactionID
	for _, rid := range all {
		if q.arena.Reaction(rid).Level == minLevel {
			batch = append(batch, rid)
			delete(q.members, rid)
		} else {
			q.heap.Push(rid)
		}
	}
	return batch
}

// IsEmpty reports whether the ready set holds no reactions.
func (q *Queue) IsEmpty() bool {
	return q.heap.Empty()
}

// Size reports the number of reactions currently ready, for diagnostics.
func (q *Queue) Size() int {
	return q.heap.Size()
}
