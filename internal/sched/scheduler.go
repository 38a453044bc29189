// Package sched implements the two pluggable reaction dispatch
// strategies: a dynamic level-based scheduler and a quasi-static
// bytecode-interpreted scheduler.
package sched

import "github.com/reactorcore/engine/internal/graph"

// Scheduler hands ready reactions to workers subject to the intra-tag
// precedence discipline. Implementations never fail: a reaction's own
// deadline/STP handling happens before dispatch, outside the scheduler.
type Scheduler interface {
	// StartTag prepares the scheduler for a freshly filled tag.
	StartTag()
	// GetReadyReaction blocks the calling worker until a reaction is
	// ready to run or the tag is complete (ok == false).
	GetReadyReaction(workerID int) (rid graph.ReactionID, ok bool)
	// DoneWithReaction reports that workerID finished running rid.
	DoneWithReaction(workerID int, rid graph.ReactionID)
	// Enqueue marks rid ready, e.g. because an event triggered it or a
	// reaction at a lower level produced an output that fans out to it.
	Enqueue(rid graph.ReactionID)
	// Stop releases any worker blocked waiting for more work, used
	// during shutdown to unwind cleanly.
	Stop()
}
