// Package physical bridges external real-world events into the
// engine's physical-action scheduling path. It stands in for the
// out-of-scope interactive sensor input adapter: the engine core only
// ever depends on the Source interface here, never on a transport.
package physical

import "context"

// Scheduler is the narrow slice of engine.Runtime a Source needs: the
// ability to schedule a physical action by trigger name.
type Scheduler interface {
	SchedulePhysical(triggerName string, payload any) error
}

// Source delivers external events to a Scheduler until ctx is
// cancelled or an unrecoverable error occurs.
type Source interface {
	Run(ctx context.Context, sched Scheduler) error
}
