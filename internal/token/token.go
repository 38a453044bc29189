// Package token implements the ref-counted value containers that flow
// through ports and actions.
package token

import "sync/atomic"

// Token is an immutable-payload container shared by reference count
// between ports and actions. A token with count zero is free; nothing
// may read Value after Release drives the count to zero.
type Token struct {
	Value       any
	ElementSize int
	count       atomic.Int32
}

// New returns a token with the given initial reference count. A token
// produced by a reaction via set() starts at num_destinations.
func New(value any, elementSize int, initialCount int32) *Token {
	tok := &Token{Value: value, ElementSize: elementSize}
	tok.count.Store(initialCount)
	return tok
}

// Retain adds one reference and returns the token for chaining.
func (t *Token) Retain() *Token {
	t.count.Add(1)
	return t
}

// Release drops one reference, reporting whether this call freed the
// token (count reached zero). Callers must not touch Value afterward.
func (t *Token) Release() bool {
	return t.count.Add(-1) == 0
}

// Count returns the current reference count, for diagnostics and tests.
func (t *Token) Count() int32 {
	return t.count.Load()
}
