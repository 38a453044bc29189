package engine

import (
	"context"

	"github.com/reactorcore/engine/internal/equeue"
	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rtime"
)

// seedStartup inserts the initial timer firings and a synthetic startup
// event for every startup trigger at the initial tag, per §4.7: startup
// reactions are gathered during initialization and enqueued as if
// triggered by an event at the initial tag.
func (rt *Runtime) seedStartup() {
	tag0 := rtime.Tag{Time: rt.startTime}
	for _, t := range rt.arena.Triggers() {
		switch t.Kind {
		case graph.KindTimer:
			rt.eq.Insert(equeue.Event{Trigger: t.ID, Tag: rtime.Tag{Time: rt.startTime + t.Offset}})
		case graph.KindStartup:
			rt.eq.Insert(equeue.Event{Trigger: t.ID, Tag: tag0})
		}
	}
}

// runShutdown fires every shutdown trigger at the final tag and runs one
// last scheduler pass over their downstream reactions, then stops the
// scheduler. If the program never registered a shutdown trigger this is
// a no-op beyond stopping the scheduler.
func (rt *Runtime) runShutdown(ctx context.Context) error {
	tag := rt.finalTag()
	var any bool
	for _, t := range rt.arena.Triggers() {
		if t.Kind == graph.KindShutdown {
			rt.eq.Insert(equeue.Event{Trigger: t.ID, Tag: tag})
			any = true
		}
	}
	if !any {
		rt.scheduler.Stop()
		return nil
	}
	err := rt.runTag(ctx)
	rt.scheduler.Stop()
	return err
}

// finalTag picks the logical instant shutdown reactions run at: the
// configured stop time if one was set, otherwise one microstep past
// whatever tag the engine last processed.
func (rt *Runtime) finalTag() rtime.Tag {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.stopTime != nil {
		return rtime.Tag{Time: *rt.stopTime}
	}
	return rt.currentTag.NextMicrostep()
}
