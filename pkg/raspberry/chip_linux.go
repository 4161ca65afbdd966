//go:build linux

package raspberry

import (
	"sync"

	"irqlat/pkg/port"

	"github.com/pkg/errors"
	"github.com/warthog618/gpiod"
)

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	gpiodChip *gpiod.Chip
	consumer  string

	mu   sync.Mutex
	used map[int]bool
}

// Line is a requested output line.
type Line struct {
	gpiodLine *gpiod.Line
	offset    int
}

// EventLine is an input line. The line is requested with rising edge detection
// when the handler is attached and released again on detach, so the kernel irq
// is only installed while a latency test is running.
type EventLine struct {
	chip   *Chip
	offset int

	mu        sync.Mutex
	gpiodLine *gpiod.Line
}

// openChip opens a GPIO character device.
func openChip(name, consumer string) (GPIO, error) {
	c, err := gpiod.NewChip(name, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "can't open gpio chip %q", name)
	}
	return &Chip{gpiodChip: c, consumer: consumer, used: map[int]bool{}}, nil
}

func (c *Chip) reserve(offset int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.used[offset] {
		return errors.Wrapf(ErrPinUsed, "pin %v", offset)
	}
	c.used[offset] = true
	return nil
}

func (c *Chip) unreserve(offset int) {
	c.mu.Lock()
	delete(c.used, offset)
	c.mu.Unlock()
}

// OutputPin requests control of a single line as output, driven low.
// If granted, control is maintained until the Line is closed.
func (c *Chip) OutputPin(offset int) (OutputPin, error) {
	if err := c.reserve(offset); err != nil {
		return nil, err
	}

	l, err := c.gpiodChip.RequestLine(offset, gpiod.AsOutput(0))
	if err != nil {
		c.unreserve(offset)
		return nil, errors.Wrapf(err, "can't request output line %v", offset)
	}
	return &Line{gpiodLine: l, offset: offset}, nil
}

// IRQLine reserves a line for edge detection.
// The line itself is requested by Attach.
func (c *Chip) IRQLine(offset int) (IRQLine, error) {
	if offset < 0 || offset >= c.gpiodChip.Lines() {
		return nil, errors.Wrapf(ErrInvalidParam, "line %v out of range", offset)
	}
	if err := c.reserve(offset); err != nil {
		return nil, err
	}
	return &EventLine{chip: c, offset: offset}, nil
}

// Close releases the Chip.
//
// It does not release any lines which may be requested - they must be closed
// independently.
func (c *Chip) Close() error {
	return c.gpiodChip.Close()
}

func (l *Line) Pin() int {
	return l.offset
}

// Set writes the level to the line.
func (l *Line) Set(v port.Level) error {
	return l.gpiodLine.SetValue(int(v))
}

// Close drives the line low and releases it.
func (l *Line) Close() error {
	_ = l.gpiodLine.SetValue(0)
	return l.gpiodLine.Close()
}

func (l *EventLine) Pin() int {
	return l.offset
}

// Attach requests the line as input with rising edge detection.
// A line held by another consumer fails with the kernel's EBUSY.
func (l *EventLine) Attach(handler func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gpiodLine != nil {
		return ErrAttached
	}

	eh := func(gpiod.LineEvent) { handler() }
	line, err := l.chip.gpiodChip.RequestLine(l.offset,
		gpiod.AsInput, gpiod.WithRisingEdge, gpiod.WithEventHandler(eh))
	if err != nil {
		return errors.Wrapf(err, "can't request irq line %v", l.offset)
	}

	l.gpiodLine = line
	return nil
}

// Detach releases the line request.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence Detach must not be called from the context of the event
// handler.
func (l *EventLine) Detach() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gpiodLine == nil {
		return ErrNotAttached
	}

	err := l.gpiodLine.Close()
	l.gpiodLine = nil
	return err
}

// Close detaches a remaining handler and gives the line back to the chip.
func (l *EventLine) Close() error {
	if err := l.Detach(); err != nil && !errors.Is(err, ErrNotAttached) {
		return err
	}
	l.chip.unreserve(l.offset)
	return nil
}
