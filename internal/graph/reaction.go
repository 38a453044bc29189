package graph

import (
	"sync/atomic"
	"time"
)

// ReactionStatus is the lifecycle state of a reaction within one tag.
type ReactionStatus int32

const (
	StatusInactive ReactionStatus = iota
	StatusQueued
	StatusRunning
)

// ReactionFunc is the tagged-closure reaction body: the code generator
// (here, internal/scenarios) binds the reactor's typed state into the
// closure, replacing a void-pointer self struct with ordinary capture.
type ReactionFunc func(ctx *ReactionCtx) error

// HandlerFunc runs in place of a reaction body when a deadline or STP
// violation is detected before dispatch.
type HandlerFunc func(ctx *ReactionCtx) error

// Reaction is the static descriptor of one reaction: its body, its
// place in the intra-tag precedence DAG, and its failure handlers.
type Reaction struct {
	ID                 ReactionID
	Reactor            ReactorID
	Name               string
	Body               ReactionFunc
	Level              int
	ChainID            Chain
	Deadline           time.Duration
	DeadlineHandler    HandlerFunc
	STPHandler         HandlerFunc
	DownstreamTriggers []TriggerID

	status atomic.Int32
}

// Status returns the reaction's current lifecycle state.
func (r *Reaction) Status() ReactionStatus {
	return ReactionStatus(r.status.Load())
}

// TryQueue transitions inactive -> queued, reporting success. Queuing is
// idempotent: calling it on an already-queued reaction is a no-op and
// reports false so callers don't double-insert into the reaction queue.
func (r *Reaction) TryQueue() bool {
	return r.status.CompareAndSwap(int32(StatusInactive), int32(StatusQueued))
}

// TryRun transitions queued -> running, reporting success.
func (r *Reaction) TryRun() bool {
	return r.status.CompareAndSwap(int32(StatusQueued), int32(StatusRunning))
}

// Done transitions running -> inactive. Per the precedence discipline
// this must be called exactly once for every successful TryRun.
func (r *Reaction) Done() {
	if !r.status.CompareAndSwap(int32(StatusRunning), int32(StatusInactive)) {
		panic("graph: reaction.Done called outside running state")
	}
}

// ResetForTag forces a reaction back to inactive, used only when a
// reaction that was queued turns out to be skipped (e.g. by a
// data-dependent condition that never runs it this tag).
func (r *Reaction) ResetForTag() {
	r.status.Store(int32(StatusInactive))
}

// Priority returns the composite (deadline_offset<<16 | level) ordering
// key the reaction queue sorts by.
func (r *Reaction) Priority() uint64 {
	return (uint64(r.Deadline) << 16) | uint64(uint16(r.Level))
}
