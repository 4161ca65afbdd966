//go:build linux

package raspberry

import (
	"sync"

	"irqlat/pkg/port"

	"github.com/pkg/errors"
	"github.com/warthog618/gpio"
)

// MemPin is a pin driven through the memory mapped gpio registers.
type MemPin struct {
	gpioPin *gpio.Pin
}

// MemIRQ is an input pin watched for rising edges.
type MemIRQ struct {
	gpioPin *gpio.Pin

	mu       sync.Mutex
	attached bool
}

// Mem is the driver for /dev/gpiomem.
type Mem struct {
	mu   sync.Mutex
	pins map[int]bool
}

// openMem maps the GPIO memory range from /dev/gpiomem.
func openMem() (GPIO, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}
	return &Mem{pins: map[int]bool{}}, nil
}

// Close removes the interrupt handlers and unmaps GPIO memory
func (m *Mem) Close() error {
	return gpio.Close()
}

func (m *Mem) reserve(p int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pins[p] {
		return errors.Wrapf(ErrPinUsed, "pin %v", p)
	}
	m.pins[p] = true
	return nil
}

// OutputPin sets the pin as output, driven low.
// The pin number provided is the BCM GPIO number.
func (m *Mem) OutputPin(p int) (OutputPin, error) {
	if err := m.reserve(p); err != nil {
		return nil, err
	}

	pin := gpio.NewPin(p)
	pin.Low()
	pin.Output()
	return &MemPin{gpioPin: pin}, nil
}

// IRQLine sets the pin as input with pull down, so an open jumper reads low.
func (m *Mem) IRQLine(p int) (IRQLine, error) {
	if err := m.reserve(p); err != nil {
		return nil, err
	}

	pin := gpio.NewPin(p)
	pin.Input()
	pin.PullDown()
	return &MemIRQ{gpioPin: pin}, nil
}

// Pin returns the pin number that this Pin represents.
func (p *MemPin) Pin() int {
	return p.gpioPin.Pin()
}

// Set writes the level to the output register.
func (p *MemPin) Set(v port.Level) error {
	if v == port.High {
		p.gpioPin.High()
	} else {
		p.gpioPin.Low()
	}
	return nil
}

// Close drives the pin low and sets it back to input.
func (p *MemPin) Close() error {
	p.gpioPin.Low()
	p.gpioPin.Input()
	return nil
}

// Pin returns the pin number that this Pin represents.
func (p *MemIRQ) Pin() int {
	return p.gpioPin.Pin()
}

// Attach watches the pin for rising edges.
// There can only be one watcher on the pin at a time.
func (p *MemIRQ) Attach(handler func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attached {
		return ErrAttached
	}
	if err := p.gpioPin.Watch(gpio.EdgeRising, func(*gpio.Pin) { handler() }); err != nil {
		return err
	}
	p.attached = true
	return nil
}

// Detach removes the watch from the pin.
func (p *MemIRQ) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.attached {
		return ErrNotAttached
	}
	p.gpioPin.Unwatch()
	p.attached = false
	return nil
}

// Close removes a remaining watch.
func (p *MemIRQ) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attached {
		p.gpioPin.Unwatch()
		p.attached = false
	}
	return nil
}
