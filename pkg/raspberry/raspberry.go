// Package raspberry is the gpio driver layer: it hands out the output (test) pin
// and the interrupt capable input line used by the latency tests.
package raspberry

import (
	"irqlat/pkg/port"

	"github.com/pkg/errors"
)

var (
	ErrInvalidParam = errors.New("invalid parameters")
	ErrPinUsed      = errors.New("pin already used")
	ErrAttached     = errors.New("irq handler already attached")
	ErrNotAttached  = errors.New("irq handler not attached")
	ErrUnsupported  = errors.New("gpio driver not supported on this platform")
)

// supported drivers
const (
	// DriverGpiod uses the linux gpio character device (/dev/gpiochipN).
	DriverGpiod = "gpiod"
	// DriverGpiomem uses the memory mapped registers of /dev/gpiomem (Raspberry Pi).
	DriverGpiomem = "gpiomem"
	// DriverEmu emulates both pins in memory.
	DriverEmu = "emu"
)

// OutputPin is a line configured as output.
type OutputPin interface {
	// Pin returns the pin number (line offset) of the output.
	Pin() int
	// Set drives the line to the given level.
	Set(port.Level) error
	// Close releases the line.
	Close() error
}

// IRQLine is an input line with rising edge detection.
// The handler runs on the driver's event context and must not block.
type IRQLine interface {
	// Pin returns the pin number (line offset) of the input.
	Pin() int
	// Attach installs the edge handler. There can only be one handler at a time.
	Attach(handler func()) error
	// Detach removes the edge handler.
	// Once Detach returns the handler is not called anymore.
	Detach() error
	// Close detaches a remaining handler and releases the line.
	Close() error
}

// GPIO hands out the lines of one gpio controller.
type GPIO interface {
	OutputPin(pin int) (OutputPin, error)
	IRQLine(pin int) (IRQLine, error)
	Close() error
}

// Config selects and configures the gpio driver.
type Config struct {
	// Driver is one of DriverGpiod, DriverGpiomem or DriverEmu.
	Driver string
	// Chip is the gpio chip name, used by DriverGpiod only.
	Chip string
	// Consumer labels the requested lines, used by DriverGpiod only.
	Consumer string
	// Loopback connects the emulated output pin to the emulated irq line,
	// used by DriverEmu only.
	Loopback bool
}

// Open opens the gpio driver selected by the configuration.
func Open(c Config) (GPIO, error) {
	switch c.Driver {
	case DriverGpiod:
		return openChip(c.Chip, c.Consumer)
	case DriverGpiomem:
		return openMem()
	case DriverEmu:
		e := NewEmu()
		e.Loopback = c.Loopback
		return e, nil
	default:
		return nil, errors.Wrapf(ErrInvalidParam, "unknown gpio driver %q", c.Driver)
	}
}
