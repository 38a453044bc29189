package sched

import (
	"sync"

	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rqueue"
)

// DynamicScheduler implements the FILL -> LEVEL_RUN -> LEVEL_BARRIER ->
// TAG_DONE state machine: it computes the minimum ready level, hands out
// reactions at that level to idle workers, and only advances once every
// reaction dispatched at the level has transitioned running -> inactive.
// Within a level, two reactions whose chain masks overlap are never
// handed out concurrently: one waits for the other to finish even though
// both are otherwise ready, per the chain-disjointness half of the
// ordering guarantee.
type DynamicScheduler struct {
	arena *graph.Arena

	mu             sync.Mutex
	cond           *sync.Cond
	ready          *rqueue.Queue
	pending        []graph.ReactionID
	running        map[graph.ReactionID]graph.Chain
	runningAtLevel int
	tagDone        bool
	stopped        bool
}

// NewDynamicScheduler returns a scheduler over arena's reactions.
func NewDynamicScheduler(arena *graph.Arena) *DynamicScheduler {
	s := &DynamicScheduler{
		arena:   arena,
		ready:   rqueue.New(arena),
		running: make(map[graph.ReactionID]graph.Chain),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// StartTag transitions the scheduler into FILL -> LEVEL_RUN: it pops the
// lowest-level batch out of whatever was enqueued since the last tag.
func (s *DynamicScheduler) StartTag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagDone = false
	s.advanceLevelLocked()
}

func (s *DynamicScheduler) advanceLevelLocked() {
	batch := s.ready.PopMinLevel()
	if len(batch) == 0 {
		s.tagDone = true
		s.pending = nil
		s.runningAtLevel = 0
	} else {
		s.pending = batch
		s.runningAtLevel = len(batch)
	}
	s.cond.Broadcast()
}

// chainBlockedLocked reports whether chain overlaps a reaction currently
// running at this level, and so must wait for it to finish first.
func (s *DynamicScheduler) chainBlockedLocked(chain graph.Chain) bool {
	if chain == graph.NoChain {
		return false
	}
	for _, running := range s.running {
		if chain.Overlaps(running) {
			return true
		}
	}
	return false
}

// GetReadyReaction implements lf_sched_get_ready_reaction: it returns a
// reaction at the current level whose chain does not overlap one already
// running, blocking on a condition variable while none qualifies and the
// tag is not yet done.
func (s *DynamicScheduler) GetReadyReaction(workerID int) (graph.ReactionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopped {
			return 0, false
		}
		for i, rid := range s.pending {
			r := s.arena.Reaction(rid)
			if s.chainBlockedLocked(r.ChainID) {
				continue
			}
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			if !r.TryRun() {
				continue
			}
			s.running[rid] = r.ChainID
			return rid, true
		}
		if s.tagDone {
			return 0, false
		}
		s.cond.Wait()
	}
}

// DoneWithReaction implements lf_sched_done_with_reaction: it atomically
// transitions the reaction to inactive, frees its chain for the next
// waiting reaction, and advances to the next level once the level has
// fully drained.
func (s *DynamicScheduler) DoneWithReaction(workerID int, rid graph.ReactionID) {
	s.arena.Reaction(rid).Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, rid)
	s.runningAtLevel--
	if s.runningAtLevel == 0 && len(s.pending) == 0 {
		s.advanceLevelLocked()
	} else {
		s.cond.Broadcast()
	}
}

// Enqueue marks rid ready, moving it from inactive to queued if the
// caller has not already done so. Reactions produced by set() during the
// current level land here and are naturally deferred to their own
// (necessarily higher) level by the priority ordering in rqueue.
func (s *DynamicScheduler) Enqueue(rid graph.ReactionID) {
	s.arena.Reaction(rid).TryQueue()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready.Insert(rid)
}

// Stop releases any worker blocked in GetReadyReaction.
func (s *DynamicScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cond.Broadcast()
}
