// Package engine wires the event queue, reaction queue, scheduler, and
// worker pool into the tag advancement loop, and exposes the
// schedule()/set() reaction-body API reactions call back into.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/reactorcore/engine/internal/cache"
	"github.com/reactorcore/engine/internal/equeue"
	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rtime"
	"github.com/reactorcore/engine/internal/sched"
	"github.com/reactorcore/engine/internal/telemetry"
	"github.com/reactorcore/engine/internal/token"
	"github.com/reactorcore/engine/internal/wpool"
)

// handlerDedupSize bounds the deadline/STP handler dedup cache. A
// program with more concurrently in-flight (reaction, tag) pairs than
// this within one tag is pathological; eviction only risks an extra
// handler call, never a missed one.
const handlerDedupSize = 4096

// Options configures a Runtime at construction time. Every field here
// maps to a piece of the code-generator interface the core consumes
// (§6): the arena and scheduler are the generated static tables, the
// rest is platform/ambient wiring.
type Options struct {
	Arena     *graph.Arena
	Scheduler sched.Scheduler
	Clock     rtime.Clock
	Workers   int
	StartTime int64 // nanoseconds
	StopTime  *int64
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Instr     *telemetry.Instruments

	// WaitForExternalEvents keeps Run blocked on an empty queue instead
	// of returning, for a program whose only remaining events arrive
	// from an external Source (internal/physical) running concurrently
	// with Run rather than pre-scheduled before it starts. Leave false
	// for a physical action seeded synchronously before Run — there,
	// queue-drained really does mean done.
	WaitForExternalEvents bool
}

// Runtime is the long-lived object a program is built, run, and torn
// down through: construct -> init -> run -> shutdown.
type Runtime struct {
	arena     *graph.Arena
	scheduler sched.Scheduler
	clock     rtime.Clock
	pool      *wpool.Pool
	startTime int64
	stopTime  *int64
	log       *slog.Logger
	tracer    trace.Tracer
	instr     *telemetry.Instruments

	mu           sync.Mutex
	eq           *equeue.Queue
	currentTag   rtime.Tag
	presentPorts []graph.PortID
	firedEvents  []equeue.Event // events delivered this tag, for presence clearing

	triggerTokens map[graph.TriggerID]*token.Token
	triggersByName map[string]graph.TriggerID

	hasPhysical         bool
	physicallyTriggered map[graph.ReactionID]bool
	handlerDedup        *cache.Dedup
	waitForExternal     bool

	// wake lets Schedule nudge Run out of an empty-queue idle wait when
	// waitForExternal is set.
	wake chan struct{}
}

// New builds a Runtime over the given static program. It does not start
// the tag advancement loop; call Run for that.
func New(opts Options) *Runtime {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = rtime.NewSystemClock()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("reactorcore/engine")
	}

	rt := &Runtime{
		arena:               opts.Arena,
		scheduler:           opts.Scheduler,
		clock:               opts.Clock,
		pool:                wpool.New(opts.Workers),
		startTime:           opts.StartTime,
		stopTime:            opts.StopTime,
		log:                 opts.Logger,
		tracer:              opts.Tracer,
		instr:               opts.Instr,
		eq:                  equeue.New(),
		currentTag:          rtime.Tag{Time: opts.StartTime},
		physicallyTriggered: make(map[graph.ReactionID]bool),
		handlerDedup:        cache.NewDedup(handlerDedupSize),
		waitForExternal:     opts.WaitForExternalEvents,
		wake:                make(chan struct{}, 1),
	}

	rt.triggersByName = make(map[string]graph.TriggerID)
	for _, t := range opts.Arena.Triggers() {
		rt.triggersByName[t.Name] = t.ID
		if t.IsPhysical || t.Kind == graph.KindPhysicalAction {
			rt.hasPhysical = true
			for _, rid := range t.Reactions {
				rt.physicallyTriggered[rid] = true
			}
		}
	}
	return rt
}

// SchedulePhysical implements physical.Scheduler: it resolves a
// physical action by name and schedules it with zero additional delay,
// the entry point external adapters use instead of reaching into the
// arena directly.
func (rt *Runtime) SchedulePhysical(triggerName string, payload any) error {
	id, ok := rt.triggersByName[triggerName]
	if !ok {
		return fmt.Errorf("engine: unknown physical trigger %q", triggerName)
	}
	var tok *token.Token
	if payload != nil {
		tok = token.New(payload, 0, 1)
	}
	rt.Schedule(id, 0, tok)
	return nil
}

// CurrentTag implements graph.RuntimeHooks.
func (rt *Runtime) CurrentTag() rtime.Tag {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.currentTag
}

// StartTime implements graph.RuntimeHooks.
func (rt *Runtime) StartTime() int64 {
	return rt.startTime
}

// PhysicalTime implements graph.RuntimeHooks.
func (rt *Runtime) PhysicalTime() time.Duration {
	return rt.clock.Now()
}

// Set implements graph.RuntimeHooks: marks a port present, seeds its
// token's reference count from the static fan-out, and enqueues every
// reaction the port feeds.
func (rt *Runtime) Set(port graph.PortID, value any) {
	p := rt.arena.Port(port)
	p.IsPresent = true
	p.Value = value
	if p.NumDestinations > 0 {
		p.Tok = token.New(value, 0, int32(p.NumDestinations))
	}

	rt.mu.Lock()
	rt.presentPorts = append(rt.presentPorts, port)
	rt.mu.Unlock()

	for _, rid := range p.Downstream {
		r := rt.arena.Reaction(rid)
		if r.TryQueue() {
			rt.scheduler.Enqueue(rid)
		}
	}
}

// Schedule implements graph.RuntimeHooks and the §4.6 scheduling
// formula exactly: event_time = base + offset + extra_delay, landing
// on microstep+1 when that equals the current tag's time, else
// microstep 0.
func (rt *Runtime) Schedule(trigID graph.TriggerID, extraDelay time.Duration, tok *token.Token) uint32 {
	trig := rt.arena.Trigger(trigID)

	if !trig.IsPhysical && extraDelay < 0 {
		panic(fmt.Sprintf("engine: schedule called with negative delay %v on logical action %q", extraDelay, trig.Name))
	}

	rt.mu.Lock()
	cur := rt.currentTag
	rt.mu.Unlock()

	var base int64
	if trig.IsPhysical {
		base = int64(rt.clock.Now())
	} else {
		base = cur.Time
	}
	eventTime := base + trig.Offset + int64(extraDelay)

	var microstep uint32
	if eventTime == cur.Time {
		microstep = cur.Microstep + 1
	}

	rt.mu.Lock()
	rt.eq.Insert(equeue.Event{Trigger: trigID, Tag: rtime.Tag{Time: eventTime, Microstep: microstep}, Token: tok})
	rt.mu.Unlock()

	select {
	case rt.wake <- struct{}{}:
	default:
	}

	return microstep
}
