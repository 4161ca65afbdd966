package irqlat

import (
	"context"
	"time"

	"irqlat/pkg/port"

	"github.com/pkg/errors"
	"github.com/womat/debug"
)

// DefaultTimeout is the wait for the interrupt. It is far above any real irq
// latency, so it only expires if the pins are not connected.
const DefaultTimeout = 500 * time.Millisecond

// RunLatency runs one latency test:
//   - wait for the gate
//   - arm a signal and attach the irq handler
//   - set the test pin high, the handler sets it low again
//   - wait for the handler or the timeout
//   - detach the handler and release the gate
//
// The handler is detached and the gate released on every return path.
// TimedOut is not an error: the test pin stays high and the pins are most
// likely not jumpered.
func (d *Device) RunLatency(ctx context.Context, timeout time.Duration) (outcome Outcome, err error) {
	release, err := d.gate.acquire(ctx)
	if err != nil {
		return TimedOut, err
	}
	defer release()

	if d.closed.Load() {
		return TimedOut, ErrClosed
	}

	c := Arm()
	d.pending.Store(c)

	if e := d.irq.Attach(d.HandleEdge); e != nil {
		d.pending.CompareAndSwap(c, nil)
		return TimedOut, errors.Wrapf(ErrHandlerAttachFailed, "irq pin %v: %v", d.irq.Pin(), e)
	}

	waited := false
	handlerErrors := d.handlerErrors.Load()

	defer func() {
		d.pending.CompareAndSwap(c, nil)

		if waited && d.observer != nil {
			d.observer.Finished(d.irq.Pin(), outcome)
		}

		if e := d.irq.Detach(); e != nil {
			debug.ErrorLog.Printf("can't detach irq pin %v: %v", d.irq.Pin(), e)
			if err == nil {
				err = errors.Wrapf(ErrHandlerDetachFailed, "irq pin %v: %v", d.irq.Pin(), e)
			}
		}
	}()

	if d.observer != nil {
		d.observer.Attached(d.irq.Pin())
	}

	if e := d.out.Set(port.High); e != nil {
		return TimedOut, errors.Wrapf(ErrPinWrite, "test pin %v: %v", d.out.Pin(), e)
	}

	outcome, err = c.Wait(ctx, timeout)
	waited = true

	if err == nil && d.handlerErrors.Load() != handlerErrors {
		err = errors.Wrapf(ErrPinWrite, "irq handler couldn't clear test pin %v", d.out.Pin())
	}
	return outcome, err
}
