// Package cache provides the bounded memoization the engine uses to
// guard against double-handling: a reaction's deadline or STP handler
// must fire at most once per tag even if a scheduler bug or a
// replayed event batch dispatches the same reaction twice.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/rtime"
)

type dedupKey struct {
	reaction graph.ReactionID
	tag      rtime.Tag
}

// Dedup is a bounded LRU set of (reaction, tag) pairs already handled.
// Eviction under pressure is safe: the worst case is an occasional
// repeat handler invocation, not a correctness violation, since the
// reaction body itself still only runs once per the scheduler's own
// status machine.
type Dedup struct {
	seen *lru.Cache[dedupKey, struct{}]
}

// NewDedup returns a dedup set bounded to size entries.
func NewDedup(size int) *Dedup {
	c, err := lru.New[dedupKey, struct{}](size)
	if err != nil {
		// size <= 0 is a programmer error, not a runtime condition.
		panic(err)
	}
	return &Dedup{seen: c}
}

// Seen reports whether (rid, tag) was already recorded, and records it
// if not.
func (d *Dedup) Seen(rid graph.ReactionID, tag rtime.Tag) bool {
	key := dedupKey{reaction: rid, tag: tag}
	if _, ok := d.seen.Get(key); ok {
		return true
	}
	d.seen.Add(key, struct{}{})
	return false
}
