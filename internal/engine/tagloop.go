package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reactorcore/engine/internal/equeue"
	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/token"
)

// Run executes startup, then the tag advancement loop until the event
// queue is permanently drained or a stop time is reached, then
// shutdown. It blocks until the program terminates or ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.seedStartup()

	for {
		select {
		case <-ctx.Done():
			rt.scheduler.Stop()
			return ctx.Err()
		default:
		}

		if rt.eq.IsEmpty() {
			if !rt.waitForExternal {
				break
			}
			// An external Source may still deliver a physical event after
			// this point; wait for Schedule to wake us rather than
			// declaring the program done.
			select {
			case <-ctx.Done():
				rt.scheduler.Stop()
				return ctx.Err()
			case <-rt.wake:
			}
			continue
		}
		tag, _ := rt.eq.PeekTag()
		if rt.stopTime != nil && tag.Time > *rt.stopTime {
			break
		}

		if err := rt.runTag(ctx); err != nil {
			rt.scheduler.Stop()
			return err
		}
	}

	return rt.runShutdown(ctx)
}

// runTag implements the eight-step tag advancement algorithm for one tag.
func (rt *Runtime) runTag(ctx context.Context) error {
	rt.clearPresence() // step 1

	batch := rt.eq.PopAllAtMinTag() // step 2
	if len(batch) == 0 {
		return nil
	}
	tag := batch[0].Tag

	rt.mu.Lock()
	rt.currentTag = tag
	rt.firedEvents = batch
	rt.mu.Unlock()

	if rt.hasPhysical { // step 3
		// The sleep ends at the tag's time or on ctx cancellation; a
		// physical event scheduled while it is in progress does not end it.
		if err := rt.clock.SleepUntil(ctx, time.Duration(tag.Time)); err != nil {
			return err
		}
	}

	tagCtx, span := rt.tracer.Start(ctx, "tag.advance", trace.WithAttributes(
		attribute.Int64("tag_time_ns", tag.Time),
		attribute.Int64("tag_microstep", int64(tag.Microstep)),
	))
	defer span.End()

	for _, ev := range batch { // step 4
		trig := rt.arena.Trigger(ev.Trigger)
		trig.Present = true
		if ev.Token != nil {
			rt.setTriggerToken(ev.Trigger, ev.Token)
		}
		for _, rid := range trig.Reactions {
			r := rt.arena.Reaction(rid)
			if r.TryQueue() {
				rt.scheduler.Enqueue(rid)
			}
		}
	}

	rt.scheduler.StartTag() // step 5 (FILL -> LEVEL_RUN)
	if err := rt.pool.Run(tagCtx, rt.workerLoop); err != nil {
		return err
	}

	for _, ev := range batch { // step 6: reinsert periodic timers
		trig := rt.arena.Trigger(ev.Trigger)
		if trig.Kind == graph.KindTimer && trig.Period > 0 {
			rt.eq.Insert(equeue.Event{Trigger: ev.Trigger, Tag: tag.Plus(time.Duration(trig.Period))})
		}
	}

	rt.releaseConsumedTokens() // step 7

	if rt.instr != nil {
		rt.instr.TagsAdvanced.Add(tagCtx, 1)
	}
	return nil
}

// workerLoop is the body one pool worker runs for a single tag: it
// drains ready reactions from the scheduler until the tag is done.
func (rt *Runtime) workerLoop(ctx context.Context, workerID int) error {
	for {
		rid, ok := rt.scheduler.GetReadyReaction(workerID)
		if !ok {
			return nil
		}
		rt.dispatch(ctx, workerID, rid)
		rt.scheduler.DoneWithReaction(workerID, rid)
	}
}

// dispatch runs one reaction, substituting its deadline or STP handler
// when the appropriate violation is detected before the body would run.
func (rt *Runtime) dispatch(ctx context.Context, workerID int, rid graph.ReactionID) {
	r := rt.arena.Reaction(rid)

	dctx, span := rt.tracer.Start(ctx, "reaction.dispatch", trace.WithAttributes(
		attribute.Int("reaction_id", int(rid)),
		attribute.Int("worker_id", workerID),
	))
	defer span.End()

	tag := rt.CurrentTag()
	lateBy := rt.clock.Now() - time.Duration(tag.Time)

	rctx := graph.NewReactionCtx(rt.arena, rt, r.Reactor)

	var err error
	switch {
	case r.Deadline > 0 && lateBy > r.Deadline:
		if rt.handlerDedup.Seen(rid, tag) {
			return
		}
		rt.log.Warn("deadline miss", "reaction", int(rid), "late_by", lateBy, "deadline", r.Deadline)
		if rt.instr != nil {
			rt.instr.DeadlineMisses.Add(dctx, 1)
		}
		if r.DeadlineHandler != nil {
			err = r.DeadlineHandler(rctx)
		}
	case rt.physicallyTriggered[rid] && lateBy > 0 && r.STPHandler != nil:
		if rt.handlerDedup.Seen(rid, tag) {
			return
		}
		rt.log.Warn("stp violation", "reaction", int(rid), "late_by", lateBy)
		if rt.instr != nil {
			rt.instr.STPViolations.Add(dctx, 1)
		}
		err = r.STPHandler(rctx)
	default:
		err = r.Body(rctx)
	}

	if err != nil {
		rt.log.Error("reaction returned error", "reaction", int(rid), "error", err)
	}
	if rt.instr != nil {
		rt.instr.ReactionsDispatched.Add(dctx, 1)
	}
}

// clearPresence resets every port and trigger marked present during the
// previous tag, per step 1 of the advancement algorithm. It walks only
// the items actually touched last tag rather than the whole arena.
func (rt *Runtime) clearPresence() {
	rt.mu.Lock()
	ports := rt.presentPorts
	rt.presentPorts = nil
	events := rt.firedEvents
	rt.firedEvents = nil
	rt.mu.Unlock()

	for _, pid := range ports {
		rt.arena.Port(pid).Clear()
	}
	rt.mu.Lock()
	for _, ev := range events {
		delete(rt.triggerTokens, ev.Trigger)
	}
	rt.mu.Unlock()
	for _, ev := range events {
		rt.arena.Trigger(ev.Trigger).Clear()
	}
}

// releaseConsumedTokens drops the reference a port's own presence held
// on its token once the tag it was produced in has finished dispatch.
func (rt *Runtime) releaseConsumedTokens() {
	for i := range rt.arena.Ports() {
		p := &rt.arena.Ports()[i]
		if p.IsPresent && p.Tok != nil {
			p.Tok.Release()
		}
	}
}

// setTriggerToken stashes an action event's token where the reaction it
// fires can read it back via ReactionCtx.ActionToken.
func (rt *Runtime) setTriggerToken(trig graph.TriggerID, tok *token.Token) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.triggerTokens == nil {
		rt.triggerTokens = make(map[graph.TriggerID]*token.Token)
	}
	rt.triggerTokens[trig] = tok
}

// ActionToken implements graph.RuntimeHooks.
func (rt *Runtime) ActionToken(trig graph.TriggerID) *token.Token {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.triggerTokens[trig]
}
