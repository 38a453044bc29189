package graph

import (
	"time"

	"github.com/reactorcore/engine/internal/rtime"
	"github.com/reactorcore/engine/internal/token"
)

// RuntimeHooks is the slice of Runtime behavior a reaction body is
// allowed to call back into: producing outputs and scheduling future
// events. It is implemented by internal/engine.Runtime and injected so
// this package never imports the engine that embeds it.
type RuntimeHooks interface {
	Set(port PortID, value any)
	Schedule(trigger TriggerID, extraDelay time.Duration, tok *token.Token) uint32
	ActionToken(trigger TriggerID) *token.Token
	CurrentTag() rtime.Tag
	StartTime() int64
	PhysicalTime() time.Duration
}

// ReactionCtx is the API surface exposed to a reaction body: the
// reaction-body API of set/schedule/time queries.
type ReactionCtx struct {
	arena *Arena
	hooks RuntimeHooks
	self  ReactorID
}

// NewReactionCtx builds the context passed to a reaction body for one
// invocation. The engine constructs one per dispatch.
func NewReactionCtx(arena *Arena, hooks RuntimeHooks, self ReactorID) *ReactionCtx {
	return &ReactionCtx{arena: arena, hooks: hooks, self: self}
}

// Set marks a port present at the current tag and notifies its
// downstream trigger set, per spec's reaction-body contract.
func (c *ReactionCtx) Set(port PortID, value any) {
	c.hooks.Set(port, value)
}

// Schedule schedules trigger (a logical or physical action) with the
// given additional delay and optional token, returning the microstep
// the resulting event lands on.
func (c *ReactionCtx) Schedule(trigger TriggerID, extraDelay time.Duration, tok *token.Token) uint32 {
	return c.hooks.Schedule(trigger, extraDelay, tok)
}

// ActionToken returns the token delivered by the event that fired
// trigger at the current tag, or nil if none was attached.
func (c *ReactionCtx) ActionToken(trigger TriggerID) *token.Token {
	return c.hooks.ActionToken(trigger)
}

// Port resolves a PortID to its current record for reading a value.
func (c *ReactionCtx) Port(id PortID) *Port {
	return c.arena.Port(id)
}

// Self returns the ID of the reactor instance this reaction belongs to.
func (c *ReactionCtx) Self() ReactorID {
	return c.self
}

// GetElapsedLogicalTime returns the logical time elapsed since start.
func (c *ReactionCtx) GetElapsedLogicalTime() time.Duration {
	return time.Duration(c.hooks.CurrentTag().Time - c.hooks.StartTime())
}

// GetLogicalTime returns the current tag's physical-time component.
func (c *ReactionCtx) GetLogicalTime() time.Duration {
	return time.Duration(c.hooks.CurrentTag().Time)
}

// GetMicrostep returns the current tag's microstep component, the
// counter that orders zero-delay events at the same logical time.
func (c *ReactionCtx) GetMicrostep() uint32 {
	return c.hooks.CurrentTag().Microstep
}

// GetPhysicalTime returns the wall-clock time elapsed since the
// platform clock's zero point.
func (c *ReactionCtx) GetPhysicalTime() time.Duration {
	return c.hooks.PhysicalTime()
}
