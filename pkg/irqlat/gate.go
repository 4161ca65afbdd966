package irqlat

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// gate allows one test at a time. Waiters are served in FIFO order.
type gate struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

func newGate() *gate {
	return &gate{sem: semaphore.NewWeighted(1)}
}

// acquire blocks until the gate is free or ctx is done.
// The returned release function is safe to call more than once.
func (g *gate) acquire(ctx context.Context) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return func() {}, cancelled(err)
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return func() {}, cancelled(err)
	}
	return g.hold(), nil
}

// tryAcquire takes the gate only if it is free.
func (g *gate) tryAcquire() (release func(), ok bool) {
	if !g.sem.TryAcquire(1) {
		return func() {}, false
	}
	return g.hold(), true
}

func (g *gate) hold() func() {
	g.held.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.held.Store(false)
			g.sem.Release(1)
		})
	}
}

// busy reports whether a test holds the gate.
func (g *gate) busy() bool {
	return g.held.Load()
}
