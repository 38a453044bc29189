// Package wpool supervises the fixed-size set of worker goroutines that
// pull ready reactions from a scheduler.
package wpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs a fixed number of workers, propagating the first worker
// error (if any) to every other worker via the shared context.
type Pool struct {
	size int
}

// New returns a pool sized to run n workers concurrently.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{size: n}
}

// Size reports how many workers Run will launch.
func (p *Pool) Size() int {
	return p.size
}

// WorkerFunc is the body one worker goroutine runs for a single Run
// call. workerID ranges over 0..Size()-1 and each Run reuses those IDs.
type WorkerFunc func(ctx context.Context, workerID int) error

// Run launches p.Size() workers and blocks until they all return. The
// first non-nil error cancels ctx for the rest and is returned.
func (p *Pool) Run(ctx context.Context, fn WorkerFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error {
			return fn(gctx, id)
		})
	}
	return g.Wait()
}
