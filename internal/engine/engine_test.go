package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rtime"
	"github.com/reactorcore/engine/internal/scenarios"
	"github.com/reactorcore/engine/internal/sched"
)

func TestScheduleRejectsNegativeDelayOnLogicalAction(t *testing.T) {
	a := graph.NewArena()
	reactor := a.AddReactor("r")
	trig := a.AddTrigger(reactor, graph.Trigger{Kind: graph.KindLogicalAction, Name: "a"})

	rt := New(Options{
		Arena:     a,
		Scheduler: sched.NewDynamicScheduler(a),
		Workers:   1,
	})

	require.Panics(t, func() { rt.Schedule(trig, -time.Millisecond, nil) })
}

func TestRunWaitsForExternalEventsUntilCancelled(t *testing.T) {
	a := graph.NewArena()
	r := a.AddReactor("Sensor")
	trig := a.AddTrigger(r, graph.Trigger{Name: "physical_in", Kind: graph.KindPhysicalAction, IsPhysical: true})

	ran := make(chan struct{}, 1)
	react := a.AddReaction(r, graph.Reaction{
		Body: func(ctx *graph.ReactionCtx) error {
			ran <- struct{}{}
			return nil
		},
	})
	a.Trigger(trig).Reactions = append(a.Trigger(trig).Reactions, react)

	rt := New(Options{
		Arena:                 a,
		Scheduler:             sched.NewDynamicScheduler(a),
		Workers:               1,
		WaitForExternalEvents: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	require.NoError(t, rt.SchedulePhysical("physical_in", nil))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("reaction never ran off an externally scheduled physical event")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation while idle-waiting")
	}
}

func TestActionDelayScenario(t *testing.T) {
	result := &scenarios.ActionDelayResult{}
	arena := scenarios.BuildActionDelay(result)

	rt := New(Options{
		Arena:     arena,
		Scheduler: sched.NewDynamicScheduler(arena),
		Workers:   1,
	})
	require.NoError(t, rt.Run(context.Background()))

	require.True(t, result.Ran)
	require.Equal(t, 100*time.Millisecond, result.ElapsedLogicalTime)
	require.Equal(t, 1, result.Value)
}

func TestZeroDelayMicrostepScenario(t *testing.T) {
	result := &scenarios.MicrostepResult{}
	arena := scenarios.BuildZeroDelayMicrostep(result)

	rt := New(Options{
		Arena:     arena,
		Scheduler: sched.NewDynamicScheduler(arena),
		Workers:   1,
	})
	require.NoError(t, rt.Run(context.Background()))

	require.Equal(t, uint32(0), result.FirstMicrostep)
	require.Equal(t, uint32(1), result.SecondMicrostep)
}

func TestTimerPeriodScenario(t *testing.T) {
	result := &scenarios.TimerResult{}
	arena := scenarios.BuildTimerPeriod(result, 0, 50*time.Millisecond)

	stop := int64(200 * time.Millisecond)
	rt := New(Options{
		Arena:     arena,
		Scheduler: sched.NewDynamicScheduler(arena),
		Workers:   1,
		StopTime:  &stop,
	})
	require.NoError(t, rt.Run(context.Background()))

	want := []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond, 200 * time.Millisecond}
	require.Equal(t, want, result.Firings)
}

func TestDeadlineMissScenario(t *testing.T) {
	result := &scenarios.DeadlineResult{}
	arena, trig := scenarios.BuildDeadlineMiss(result, 10*time.Millisecond)

	clock := rtime.NewManualClock()
	rt := New(Options{
		Arena:     arena,
		Scheduler: sched.NewDynamicScheduler(arena),
		Clock:     clock,
		Workers:   1,
	})

	rt.Schedule(trig, 0, nil) // arrives at logical tag zero, physical time still zero
	clock.Set(50 * time.Millisecond)

	require.NoError(t, rt.Run(context.Background()))

	require.True(t, result.DeadlineRan)
	require.False(t, result.BodyRan)
	require.Equal(t, 50*time.Millisecond, result.LateBy)
}

func TestParallelChainsScenario(t *testing.T) {
	result := scenarios.NewParallelChainsResult()
	arena := scenarios.BuildParallelChains(result)

	rt := New(Options{
		Arena:     arena,
		Scheduler: sched.NewDynamicScheduler(arena),
		Workers:   2,
	})
	require.NoError(t, rt.Run(context.Background()))

	require.ElementsMatch(t, []string{"ChainA", "ChainB"}, result.Order())
}

func TestPrecedenceScenario(t *testing.T) {
	result := &scenarios.PrecedenceResult{}
	arena := scenarios.BuildPrecedence(result)

	rt := New(Options{
		Arena:     arena,
		Scheduler: sched.NewDynamicScheduler(arena),
		Workers:   1,
	})
	require.NoError(t, rt.Run(context.Background()))

	require.Len(t, result.Order, 4)
	require.Equal(t, "top", result.Order[0])
	require.ElementsMatch(t, []string{"left", "right"}, result.Order[1:3])
	require.Equal(t, "bottom", result.Order[3])
}
