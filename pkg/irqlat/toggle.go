package irqlat

import (
	"context"

	"irqlat/pkg/port"

	"github.com/pkg/errors"
)

// DefaultIterations is the number of high/low cycles of a toggle test.
const DefaultIterations = 1000

// RunToggle sets and clears the test pin iterations times, as fast as the
// driver allows. No interrupt is involved and nothing is timed.
func (d *Device) RunToggle(ctx context.Context, iterations int) error {
	release, err := d.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if d.closed.Load() {
		return ErrClosed
	}

	for i := 0; i < iterations; i++ {
		if err := d.out.Set(port.High); err != nil {
			return errors.Wrapf(ErrPinWrite, "test pin %v: %v", d.out.Pin(), err)
		}
		if err := d.out.Set(port.Low); err != nil {
			return errors.Wrapf(ErrPinWrite, "test pin %v: %v", d.out.Pin(), err)
		}
	}
	return nil
}
