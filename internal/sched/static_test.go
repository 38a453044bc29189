package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorcore/engine/internal/graph"
)

func TestProgramValidateAcceptsWellFormed(t *testing.T) {
	p := &Program{
		Workers: [][]Instruction{
			{{Op: OpExecute, Arg: 0}, {Op: OpNotify, Arg: 0}, {Op: OpStop}},
			{{Op: OpWait, Arg: 0}, {Op: OpExecute, Arg: 1}, {Op: OpStop}},
		},
		Semaphores:  1,
		MaxReaction: 2,
	}
	require.NoError(t, p.Validate())
}

func TestProgramValidateRejectsMissingStop(t *testing.T) {
	p := &Program{
		Workers:     [][]Instruction{{{Op: OpExecute, Arg: 0}}},
		MaxReaction: 1,
	}
	require.Error(t, p.Validate())
}

func TestProgramValidateRejectsOutOfRangeExecute(t *testing.T) {
	p := &Program{
		Workers:     [][]Instruction{{{Op: OpExecute, Arg: 5}, {Op: OpStop}}},
		MaxReaction: 1,
	}
	require.Error(t, p.Validate())
}

func TestProgramValidateRejectsUnbalancedSemaphore(t *testing.T) {
	p := &Program{
		Workers: [][]Instruction{
			{{Op: OpWait, Arg: 0}, {Op: OpStop}},
		},
		Semaphores:  1,
		MaxReaction: 0,
	}
	require.Error(t, p.Validate())
}

func TestStaticSchedulerExecutesInOrderAcrossWorkers(t *testing.T) {
	a := graph.NewArena()
	reactor := a.AddReactor("r")
	a.AddReaction(reactor, graph.Reaction{})
	a.AddReaction(reactor, graph.Reaction{})
	a.Reaction(0).TryQueue()
	a.Reaction(1).TryQueue()

	prog := &Program{
		Workers: [][]Instruction{
			{{Op: OpExecute, Arg: 0}, {Op: OpNotify, Arg: 0}, {Op: OpStop}},
			{{Op: OpWait, Arg: 0}, {Op: OpExecute, Arg: 1}, {Op: OpStop}},
		},
		Semaphores:  1,
		MaxReaction: 2,
	}
	require.NoError(t, prog.Validate())

	s := NewStaticScheduler(a, prog)
	s.StartTag()

	// Worker 1 must block on its wait until worker 0 actually reaches its
	// notify, so drive worker 0's program to completion (execute, then
	// the trailing notify+stop) on its own goroutine the way the real
	// worker pool would, rather than interleaving the two by hand.
	done := make(chan struct{})
	go func() {
		defer close(done)
		rid, ok := s.GetReadyReaction(0)
		require.True(t, ok)
		require.Equal(t, graph.ReactionID(0), rid)
		s.DoneWithReaction(0, rid)

		_, ok = s.GetReadyReaction(0) // runs the notify, then hits stop
		require.False(t, ok)
	}()

	rid, ok := s.GetReadyReaction(1) // blocks on wait until worker 0 notifies
	require.True(t, ok)
	require.Equal(t, graph.ReactionID(1), rid)
	s.DoneWithReaction(1, rid)

	_, ok = s.GetReadyReaction(1)
	require.False(t, ok)
	<-done
}

func TestStaticSchedulerSkipsInactiveExecute(t *testing.T) {
	a := graph.NewArena()
	reactor := a.AddReactor("r")
	a.AddReaction(reactor, graph.Reaction{})
	a.Reaction(0).TryQueue()
	a.Reaction(0).TryRun()
	a.Reaction(0).Done() // leaves it inactive, not queued

	prog := &Program{
		Workers:     [][]Instruction{{{Op: OpExecute, Arg: 0}, {Op: OpStop}}},
		MaxReaction: 1,
	}
	s := NewStaticScheduler(a, prog)
	s.StartTag()
	_, ok := s.GetReadyReaction(0)
	require.False(t, ok, "execute on an inactive reaction must be skipped")
}
