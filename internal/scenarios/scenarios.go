// Package scenarios hand-builds the static reactor graphs a code
// generator would otherwise emit, standing in for the out-of-scope
// compiler front end. Each builder wires a small fixed topology
// directly against internal/graph and returns a pointer the caller can
// use to observe what the running engine actually did.
package scenarios

import (
	"sync"
	"time"

	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/token"
)

// ActionDelayResult captures what Sink observed, mirroring the
// Source -> GeneratedDelay -> Sink topology from the reference
// ActionDelay program: Source emits a value at startup, GeneratedDelay
// schedules a 100ms logical action carrying it forward, and Sink
// records the elapsed logical time it saw the value arrive at.
type ActionDelayResult struct {
	ElapsedLogicalTime time.Duration
	Value              int
	Ran                bool
}

// BuildActionDelay returns the arena for the action-delay scenario: a
// 100ms logical action relays a value one hop later in logical time.
func BuildActionDelay(result *ActionDelayResult) *graph.Arena {
	a := graph.NewArena()

	source := a.AddReactor("Source")
	gen := a.AddReactor("GeneratedDelay")
	sink := a.AddReactor("Sink")

	outPort := a.AddPort(source, "out", 1)
	yIn := outPort // GeneratedDelay.y_in is wired directly to Source.out
	yOut := a.AddPort(gen, "y_out", 1)

	act := a.AddTrigger(gen, graph.Trigger{Name: "act", Kind: graph.KindLogicalAction, Offset: int64(100 * time.Millisecond)})

	// reaction 1 of GeneratedDelay: fires on the act trigger, sets y_out.
	emit := a.AddReaction(gen, graph.Reaction{
		Name:    "GeneratedDelay.reaction_1",
		Level:   2,
		ChainID: 1,
		Body: func(ctx *graph.ReactionCtx) error {
			tok := ctx.ActionToken(act)
			v := 0
			if tok != nil {
				v, _ = tok.Value.(int)
			}
			ctx.Set(yOut, v)
			return nil
		},
	})
	a.Trigger(act).Reactions = append(a.Trigger(act).Reactions, emit)

	// reaction 0 of GeneratedDelay: fires on y_in arrival, schedules act.
	capture := a.AddReaction(gen, graph.Reaction{
		Name:    "GeneratedDelay.reaction_0",
		Level:   1,
		ChainID: 1,
		Body: func(ctx *graph.ReactionCtx) error {
			v, _ := ctx.Port(yIn).Value.(int)
			ctx.Schedule(act, 0, token.New(v, 0, 1))
			return nil
		},
	})
	a.Port(yIn).Downstream = append(a.Port(yIn).Downstream, capture)

	sinkReaction := a.AddReaction(sink, graph.Reaction{
		Name:    "Sink.reaction_0",
		Level:   3,
		ChainID: 1,
		Body: func(ctx *graph.ReactionCtx) error {
			result.ElapsedLogicalTime = ctx.GetElapsedLogicalTime()
			result.Value, _ = ctx.Port(yOut).Value.(int)
			result.Ran = true
			return nil
		},
	})
	a.Port(yOut).Downstream = append(a.Port(yOut).Downstream, sinkReaction)

	sourceReaction := a.AddReaction(source, graph.Reaction{
		Name:    "Source.reaction_0",
		Level:   0,
		ChainID: 1,
		Body: func(ctx *graph.ReactionCtx) error {
			ctx.Set(outPort, 1)
			return nil
		},
	})
	a.AddTrigger(source, graph.Trigger{Name: "startup", Kind: graph.KindStartup, Reactions: []graph.ReactionID{sourceReaction}})

	return a
}

// MicrostepResult captures the microstep each of the two chained
// reactions observed.
type MicrostepResult struct {
	FirstMicrostep  uint32
	SecondMicrostep uint32
}

// BuildZeroDelayMicrostep returns the arena for the zero-delay
// scenario: a reaction schedules a zero-delay logical action from
// within the same tag it ran in, and the downstream reaction must see
// the next microstep at the same logical time rather than a new tag.
func BuildZeroDelayMicrostep(result *MicrostepResult) *graph.Arena {
	a := graph.NewArena()
	r := a.AddReactor("Loop")

	act := a.AddTrigger(r, graph.Trigger{Name: "act", Kind: graph.KindLogicalAction, Offset: 0})

	second := a.AddReaction(r, graph.Reaction{
		Name:  "Loop.second",
		Level: 0,
		Body: func(ctx *graph.ReactionCtx) error {
			result.SecondMicrostep = ctx.GetMicrostep()
			return nil
		},
	})
	a.Trigger(act).Reactions = append(a.Trigger(act).Reactions, second)

	first := a.AddReaction(r, graph.Reaction{
		Name:  "Loop.first",
		Level: 0,
		Body: func(ctx *graph.ReactionCtx) error {
			result.FirstMicrostep = ctx.GetMicrostep()
			ctx.Schedule(act, 0, nil)
			return nil
		},
	})
	a.AddTrigger(r, graph.Trigger{Name: "startup", Kind: graph.KindStartup, Reactions: []graph.ReactionID{first}})

	return a
}

// TimerResult accumulates the elapsed logical time of every firing of
// a periodic timer.
type TimerResult struct {
	Firings []time.Duration
}

// BuildTimerPeriod returns the arena for a timer firing every
// period starting at offset, used with an engine stop time to
// exercise a bounded firing count.
func BuildTimerPeriod(result *TimerResult, offset, period time.Duration) *graph.Arena {
	a := graph.NewArena()
	r := a.AddReactor("Ticker")

	timer := a.AddTrigger(r, graph.Trigger{Name: "tick", Kind: graph.KindTimer, Offset: int64(offset), Period: int64(period)})

	tick := a.AddReaction(r, graph.Reaction{
		Name:  "Ticker.tick",
		Level: 0,
		Body: func(ctx *graph.ReactionCtx) error {
			result.Firings = append(result.Firings, ctx.GetElapsedLogicalTime())
			return nil
		},
	})
	a.Trigger(timer).Reactions = append(a.Trigger(timer).Reactions, tick)

	return a
}

// DeadlineResult records which path (body or deadline handler) ran.
type DeadlineResult struct {
	BodyRan     bool
	DeadlineRan bool
	LateBy      time.Duration
}

// BuildDeadlineMiss returns the arena for a physical-action-triggered
// reaction carrying a deadline tighter than the delay the test will
// simulate between the event's logical tag and the moment it is
// dispatched, exercising the deadline-miss substitution path.
func BuildDeadlineMiss(result *DeadlineResult, deadline time.Duration) (*graph.Arena, graph.TriggerID) {
	a := graph.NewArena()
	r := a.AddReactor("Sensor")

	trig := a.AddTrigger(r, graph.Trigger{Name: "physical_in", Kind: graph.KindPhysicalAction, IsPhysical: true})

	react := a.AddReaction(r, graph.Reaction{
		Name:     "Sensor.onReading",
		Level:    0,
		Deadline: deadline,
		Body: func(ctx *graph.ReactionCtx) error {
			result.BodyRan = true
			return nil
		},
		DeadlineHandler: func(ctx *graph.ReactionCtx) error {
			result.DeadlineRan = true
			result.LateBy = ctx.GetPhysicalTime() - ctx.GetLogicalTime()
			return nil
		},
	})
	a.Trigger(trig).Reactions = append(a.Trigger(trig).Reactions, react)

	return a, trig
}

// ParallelChainsResult records which of two independent chains of
// reactions completed, in completion order.
type ParallelChainsResult struct {
	mu    sync.Mutex
	order []string
}

// NewParallelChainsResult returns a result collector safe for
// concurrent appends from worker goroutines.
func NewParallelChainsResult() *ParallelChainsResult {
	return &ParallelChainsResult{}
}

func (r *ParallelChainsResult) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

// Order returns the recorded completion order.
func (r *ParallelChainsResult) Order() []string {
	return append([]string(nil), r.order...)
}

// BuildParallelChains returns the arena for two disjoint two-reaction
// chains at the same levels, each on its own chain-id bit, both
// triggered by startup: with two or more workers they may run
// concurrently because the dynamic scheduler's chain check only
// serializes reactions that actually overlap.
func BuildParallelChains(result *ParallelChainsResult) *graph.Arena {
	a := graph.NewArena()
	reactorA := a.AddReactor("ChainA")
	reactorB := a.AddReactor("ChainB")

	buildChain := func(reactor graph.ReactorID, name string, chain graph.Chain) graph.ReactionID {
		port := a.AddPort(reactor, "done", 1)

		second := a.AddReaction(reactor, graph.Reaction{
			Name:    name + ".second",
			Level:   1,
			ChainID: chain,
			Body: func(ctx *graph.ReactionCtx) error {
				result.record(name)
				return nil
			},
		})
		a.Port(port).Downstream = append(a.Port(port).Downstream, second)

		first := a.AddReaction(reactor, graph.Reaction{
			Name:    name + ".first",
			Level:   0,
			ChainID: chain,
			Body: func(ctx *graph.ReactionCtx) error {
				ctx.Set(port, struct{}{})
				return nil
			},
		})
		return first
	}

	firstA := buildChain(reactorA, "ChainA", graph.Chain(0b01))
	firstB := buildChain(reactorB, "ChainB", graph.Chain(0b10))

	a.AddTrigger(reactorA, graph.Trigger{Name: "startup_a", Kind: graph.KindStartup, Reactions: []graph.ReactionID{firstA}})
	a.AddTrigger(reactorB, graph.Trigger{Name: "startup_b", Kind: graph.KindStartup, Reactions: []graph.ReactionID{firstB}})

	return a
}

// PrecedenceResult records the order reactions ran in across a single
// tag, to assert it always matches (chain, level) priority.
type PrecedenceResult struct {
	Order []string
}

// BuildPrecedence returns the arena for a three-level diamond: a
// startup reaction feeds two level-1 reactions which both feed one
// level-2 reaction, exercising strict level ordering with fan-in.
func BuildPrecedence(result *PrecedenceResult) *graph.Arena {
	a, _ := BuildPrecedenceWithIDs(result)
	return a
}

// PrecedenceReactions names the four reaction IDs BuildPrecedence wires,
// in topological (not necessarily numeric) order, for callers that need
// to hand-weave a static schedule over this topology rather than let a
// dynamic scheduler discover it.
type PrecedenceReactions struct {
	Top, Left, Right, Bottom graph.ReactionID
}

// BuildPrecedenceWithIDs is BuildPrecedence plus the reaction IDs it
// assigned, for building a quasi-static Program over the same topology.
func BuildPrecedenceWithIDs(result *PrecedenceResult) (*graph.Arena, PrecedenceReactions) {
	a := graph.NewArena()
	r := a.AddReactor("Diamond")

	portA := a.AddPort(r, "a", 1)
	portB := a.AddPort(r, "b", 1)
	joinA := a.AddPort(r, "join_a", 1)
	joinB := a.AddPort(r, "join_b", 1)

	bottom := a.AddReaction(r, graph.Reaction{
		Name:  "Diamond.bottom",
		Level: 2,
		Body: func(ctx *graph.ReactionCtx) error {
			result.Order = append(result.Order, "bottom")
			return nil
		},
	})
	a.Port(joinA).Downstream = append(a.Port(joinA).Downstream, bottom)
	a.Port(joinB).Downstream = append(a.Port(joinB).Downstream, bottom)

	left := a.AddReaction(r, graph.Reaction{
		Name:  "Diamond.left",
		Level: 1,
		Body: func(ctx *graph.ReactionCtx) error {
			result.Order = append(result.Order, "left")
			ctx.Set(joinA, struct{}{})
			return nil
		},
	})
	a.Port(portA).Downstream = append(a.Port(portA).Downstream, left)

	right := a.AddReaction(r, graph.Reaction{
		Name:  "Diamond.right",
		Level: 1,
		Body: func(ctx *graph.ReactionCtx) error {
			result.Order = append(result.Order, "right")
			ctx.Set(joinB, struct{}{})
			return nil
		},
	})
	a.Port(portB).Downstream = append(a.Port(portB).Downstream, right)

	top := a.AddReaction(r, graph.Reaction{
		Name:  "Diamond.top",
		Level: 0,
		Body: func(ctx *graph.ReactionCtx) error {
			result.Order = append(result.Order, "top")
			ctx.Set(portA, struct{}{})
			ctx.Set(portB, struct{}{})
			return nil
		},
	})
	a.AddTrigger(r, graph.Trigger{Name: "startup", Kind: graph.KindStartup, Reactions: []graph.ReactionID{top}})

	return a, PrecedenceReactions{Top: top, Left: left, Right: right, Bottom: bottom}
}
