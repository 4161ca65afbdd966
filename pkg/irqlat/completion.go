package irqlat

import (
	"context"
	"sync/atomic"
	"time"
)

// SignalState is the state of a Completion.
type SignalState int32

const (
	// Armed is the state of a new Completion.
	Armed SignalState = iota
	// Fired is set by the first Fire on an armed Completion.
	Fired
	// Abandoned is set by Wait if it gave up before Fire.
	Abandoned
)

func (s SignalState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Abandoned:
		return "abandoned"
	default:
		return "invalid"
	}
}

// Completion is a one shot signal with a single waiter. Fire may be called
// from the irq handler: it never blocks and never allocates.
//
// The state moves from Armed to either Fired or Abandoned exactly once, the
// compare and swap decides who wins a race between Fire and a timeout.
type Completion struct {
	state atomic.Int32
	done  chan struct{}
}

// Arm creates a fresh Completion.
func Arm() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Fire completes an armed signal. Firing a fired or abandoned signal is a no-op.
func (c *Completion) Fire() {
	if c.state.CompareAndSwap(int32(Armed), int32(Fired)) {
		close(c.done)
	}
}

// State returns the current state.
func (c *Completion) State() SignalState {
	return SignalState(c.state.Load())
}

// abandon gives up an armed signal; it reports false if Fire came first.
func (c *Completion) abandon() bool {
	return c.state.CompareAndSwap(int32(Armed), int32(Abandoned))
}

// Wait blocks until the signal fires, the timeout elapses or ctx is done.
//
// On timeout and on cancellation the signal is abandoned, so a late Fire is
// a no-op. If Fire wins the race against the timer, Completed is returned.
// A cancelled wait returns TimedOut together with ErrCancelled.
func (c *Completion) Wait(ctx context.Context, timeout time.Duration) (Outcome, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-c.done:
		return Completed, nil

	case <-t.C:
		if c.abandon() {
			return TimedOut, nil
		}
		return Completed, nil

	case <-ctx.Done():
		if c.abandon() {
			return TimedOut, cancelled(ctx.Err())
		}
		return Completed, nil
	}
}
