package graph

import "fmt"

// ReactorInstance is the opaque container grouping a reactor's own
// ports, triggers, and reactions. Its private state lives in the
// closures captured by its reactions, not in this struct: the arena
// only tracks membership and identity.
type ReactorInstance struct {
	ID        ReactorID
	Name      string
	Ports     []PortID
	Triggers  []TriggerID
	Reactions []ReactionID
}

// Arena is the single table of reactor instances, ports, triggers, and
// reactions a compiled program is built from, addressed throughout the
// engine by integer ID instead of pointer. It is populated by a
// builder during initialization and is immutable once a Runtime starts.
type Arena struct {
	reactors  []ReactorInstance
	ports     []Port
	triggers  []Trigger
	reactions []Reaction

	startup  []ReactionID
	shutdown []ReactionID
}

// NewArena returns an empty arena ready for population.
func NewArena() *Arena {
	return &Arena{}
}

// AddReactor registers a new reactor instance and returns its ID.
func (a *Arena) AddReactor(name string) ReactorID {
	id := ReactorID(len(a.reactors))
	a.reactors = append(a.reactors, ReactorInstance{ID: id, Name: name})
	return id
}

// AddPort registers a port owned by reactor and returns its ID.
func (a *Arena) AddPort(reactor ReactorID, name string, numDestinations int) PortID {
	id := PortID(len(a.ports))
	a.ports = append(a.ports, Port{ID: id, Reactor: reactor, Name: name, NumDestinations: numDestinations})
	a.reactors[reactor].Ports = append(a.reactors[reactor].Ports, id)
	return id
}

// AddTrigger registers a trigger owned by reactor and returns its ID.
func (a *Arena) AddTrigger(reactor ReactorID, t Trigger) TriggerID {
	id := TriggerID(len(a.triggers))
	t.ID = id
	t.Reactor = reactor
	a.triggers = append(a.triggers, t)
	a.reactors[reactor].Triggers = append(a.reactors[reactor].Triggers, id)
	if t.Kind == KindStartup {
		a.startup = append(a.startup, t.Reactions...)
	}
	if t.Kind == KindShutdown {
		a.shutdown = append(a.shutdown, t.Reactions...)
	}
	return id
}

// AddReaction registers a reaction owned by reactor and returns its ID.
func (a *Arena) AddReaction(reactor ReactorID, r Reaction) ReactionID {
	id := ReactionID(len(a.reactions))
	r.ID = id
	r.Reactor = reactor
	a.reactions = append(a.reactions, r)
	a.reactors[reactor].Reactions = append(a.reactors[reactor].Reactions, id)
	return id
}

// Reactor resolves a ReactorID to its record.
func (a *Arena) Reactor(id ReactorID) *ReactorInstance { return &a.reactors[id] }

// Port resolves a PortID to its record.
func (a *Arena) Port(id PortID) *Port { return &a.ports[id] }

// Trigger resolves a TriggerID to its record.
func (a *Arena) Trigger(id TriggerID) *Trigger { return &a.triggers[id] }

// Reaction resolves a ReactionID to its record.
func (a *Arena) Reaction(id ReactionID) *Reaction { return &a.reactions[id] }

// Triggers returns every trigger in the arena, in registration order.
func (a *Arena) Triggers() []Trigger { return a.triggers }

// Ports returns every port in the arena, in registration order.
func (a *Arena) Ports() []Port { return a.ports }

// StartupReactions returns the reactions gathered as startup's downstream set.
func (a *Arena) StartupReactions() []ReactionID { return a.startup }

// ShutdownReactions returns the reactions gathered as shutdown's downstream set.
func (a *Arena) ShutdownReactions() []ReactionID { return a.shutdown }

// Validate checks cross-references the builder cannot check incrementally:
// every downstream trigger and reaction ID must resolve within the arena.
func (a *Arena) Validate() error {
	for i := range a.reactions {
		r := &a.reactions[i]
		for _, tid := range r.DownstreamTriggers {
			if int(tid) < 0 || int(tid) >= len(a.triggers) {
				return fmt.Errorf("graph: reaction %d references invalid trigger %d", r.ID, tid)
			}
		}
	}
	for i := range a.triggers {
		t := &a.triggers[i]
		for _, rid := range t.Reactions {
			if int(rid) < 0 || int(rid) >= len(a.reactions) {
				return fmt.Errorf("graph: trigger %d references invalid reaction %d", t.ID, rid)
			}
		}
	}
	return nil
}
