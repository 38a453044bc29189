// Package equeue implements the tag-ordered event queue the tag
// advancement loop drains on every iteration.
package equeue

import (
	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rtime"
	"github.com/reactorcore/engine/internal/token"
)

// Event is one pending firing: a trigger due at a tag, carrying an
// optional token for action payloads.
type Event struct {
	Trigger graph.TriggerID
	Tag     rtime.Tag
	Token   *token.Token
	seq     uint64 // insertion order, preserves FIFO among equal tags
}

func comparator(a, b any) int {
	ea, eb := a.(*Event), b.(*Event)
	if c := ea.Tag.Compare(eb.Tag); c != 0 {
		return c
	}
	switch {
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	default:
		return 0
	}
}

// Queue is a persistent, tag-ordered min-priority structure over events.
// Tie-breaking among equal tags is insertion order only because the tag
// advancement loop always drains equal-tag events together.
type Queue struct {
	pq   *priorityqueue.Queue
	next uint64
}

// New returns an empty event queue.
func New() *Queue {
	return &Queue{pq: priorityqueue.NewWith(comparator)}
}

// Insert adds an event to the queue.
func (q *Queue) Insert(e Event) {
	e.seq = q.next
	q.next++
	q.pq.Enqueue(&e)
}

// IsEmpty reports whether the queue holds no events.
func (q *Queue) IsEmpty() bool {
	return q.pq.Empty()
}

// PeekTag returns the tag of the earliest pending event.
func (q *Queue) PeekTag() (rtime.Tag, bool) {
	v, ok := q.pq.Peek()
	if !ok {
		return rtime.Tag{}, false
	}
	return v.(*Event).Tag, true
}

// PopAllAtMinTag removes and returns every event sharing the queue's
// minimum tag. It is the sole way events leave the queue: the tag
// advancement loop always consumes a full simultaneous batch.
func (q *Queue) PopAllAtMinTag() []Event {
	minTag, ok := q.PeekTag()
	if !ok {
		return nil
	}
	var batch []Event
	for {
		v, ok := q.pq.Peek()
		if !ok {
			break
		}
		ev := v.(*Event)
		if !ev.Tag.Equal(minTag) {
			break
		}
		q.pq.Dequeue()
		batch = append(batch, *ev)
	}
	return batch
}

// Size reports the number of events currently queued, for diagnostics.
func (q *Queue) Size() int {
	return q.pq.Size()
}
