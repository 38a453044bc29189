package graph

import "github.com/reactorcore/engine/internal/token"

// Port holds one typed input or output slot of a reactor, reset every
// tag boundary. NumDestinations is fixed at build time from the wiring
// graph and seeds a produced token's reference count.
type Port struct {
	ID              PortID
	Reactor         ReactorID
	Name            string
	Value           any
	IsPresent       bool
	NumDestinations int
	Tok             *token.Token
	Downstream      []ReactionID
}

// Clear drops the port's presence and value ahead of the next tag, per
// the tag advancement loop's first step.
func (p *Port) Clear() {
	p.IsPresent = false
	p.Value = nil
	p.Tok = nil
}

// TriggerKind names the category of event source a Trigger represents.
type TriggerKind int

const (
	KindTimer TriggerKind = iota
	KindLogicalAction
	KindPhysicalAction
	KindStartup
	KindShutdown
	KindPortArrival
)

// Trigger is the static descriptor of one event source: a timer, a
// logical or physical action, startup, shutdown, or a port arrival.
type Trigger struct {
	ID          TriggerID
	Reactor     ReactorID
	Name        string
	Kind        TriggerKind
	Offset      int64 // nanoseconds
	Period      int64 // nanoseconds, zero for non-repeating
	IsPhysical  bool
	ElementSize int
	Reactions   []ReactionID
	Port        PortID // valid only for KindPortArrival

	// Present marks that this trigger fired at the current tag; reset
	// to false at the next tag's presence-clearing step.
	Present bool
}

// Clear resets the trigger's per-tag presence flag.
func (t *Trigger) Clear() {
	t.Present = false
}
