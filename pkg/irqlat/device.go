package irqlat

import (
	"context"
	"sync/atomic"

	"irqlat/pkg/port"
	"irqlat/pkg/raspberry"
)

// Observer is notified around the wait of a latency test, while the irq
// handler is attached. It runs on the caller's goroutine, never in the handler.
type Observer interface {
	// Attached is called after the handler is attached, before the test pin is set.
	Attached(irqPin int)
	// Finished is called after the wait returned, before the handler is detached.
	Finished(irqPin int, o Outcome)
}

// Option configures a Device.
type Option func(*Device)

// WithObserver sets the latency test observer.
func WithObserver(o Observer) Option {
	return func(d *Device) {
		d.observer = o
	}
}

// Device is the state shared by all tests: the test pin, the irq line, the
// signal armed by a running latency test and the gate.
//
// A Device must be created before any command is dispatched and closed only
// after the dispatchers are stopped. Close waits for a running test.
type Device struct {
	out raspberry.OutputPin
	irq raspberry.IRQLine

	// pending is the signal of the running latency test, nil otherwise.
	// It is the only field touched by the irq handler without holding the gate.
	pending atomic.Pointer[Completion]

	gate     *gate
	observer Observer
	closed   atomic.Bool

	// edges counts handled edges, handlerErrors counts test pin writes that
	// failed inside the handler.
	edges         atomic.Uint64
	handlerErrors atomic.Uint64
}

// Status is a snapshot of the device state.
type Status struct {
	OutputPin     int    `json:"outputPin"`
	IRQPin        int    `json:"irqPin"`
	Busy          bool   `json:"busy"`
	Armed         bool   `json:"armed"`
	Closed        bool   `json:"closed"`
	Edges         uint64 `json:"edges"`
	HandlerErrors uint64 `json:"handlerErrors"`
}

// New creates the device. Both lines must already be requested; the irq line
// must not have a handler attached.
func New(out raspberry.OutputPin, irq raspberry.IRQLine, opts ...Option) *Device {
	d := &Device{
		out:  out,
		irq:  irq,
		gate: newGate(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleEdge is the rising edge handler of the irq line. It clears the test
// pin first, then fires the pending signal, if any. An edge without a pending
// signal is spurious and only clears the pin.
//
// HandleEdge doesn't block, allocate or log.
func (d *Device) HandleEdge() {
	if err := d.out.Set(port.Low); err != nil {
		d.handlerErrors.Add(1)
	}
	d.edges.Add(1)

	if c := d.pending.Swap(nil); c != nil {
		c.Fire()
	}
}

// Pending returns the signal armed by the running latency test, or nil.
func (d *Device) Pending() *Completion {
	return d.pending.Load()
}

// Busy reports whether a test is running.
func (d *Device) Busy() bool {
	return d.gate.busy()
}

// Status returns a snapshot of the device state.
func (d *Device) Status() Status {
	return Status{
		OutputPin:     d.out.Pin(),
		IRQPin:        d.irq.Pin(),
		Busy:          d.gate.busy(),
		Armed:         d.pending.Load() != nil,
		Closed:        d.closed.Load(),
		Edges:         d.edges.Load(),
		HandlerErrors: d.handlerErrors.Load(),
	}
}

// Close waits until a running test is finished and rejects further tests.
// The lines are not closed, they belong to the caller.
func (d *Device) Close(ctx context.Context) error {
	release, err := d.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	d.closed.Store(true)
	return nil
}
