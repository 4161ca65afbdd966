package raspberry

import (
	"sync"

	"irqlat/pkg/port"

	"github.com/pkg/errors"
)

// Emu emulates the gpio controller in memory. It is used for dry runs on hosts
// without gpio and by the tests, which deliver edges with EmuEdge.
type Emu struct {
	// Loopback emulates the jumper between output pin and irq line:
	// a rising edge on the output pin is delivered to the irq line.
	Loopback bool

	mu   sync.Mutex
	out  *EmuPin
	irq  *EmuIRQ
	pins map[int]bool
}

// EmuPin is an emulated output pin.
type EmuPin struct {
	gpioPin int

	mu     sync.Mutex
	level  port.Level
	writes []port.Level
	// SetErr is returned by Set if not nil.
	SetErr error
	// jumper receives rising edges when loopback is enabled.
	jumper *EmuIRQ
}

// EmuIRQ is an emulated irq line.
type EmuIRQ struct {
	gpioPin int

	// running is held for reading while a handler runs, Detach and Close
	// take it for writing to wait for running handlers.
	running sync.RWMutex

	mu       sync.Mutex
	handler  func()
	attaches int
	detaches int
	// AttachErr is returned by Attach if not nil.
	AttachErr error
}

// NewEmu creates an emulated gpio controller.
func NewEmu() *Emu {
	return &Emu{pins: map[int]bool{}}
}

// Close the emulated controller.
func (e *Emu) Close() error {
	return nil
}

func (e *Emu) reserve(p int) error {
	if _, ok := e.pins[p]; ok {
		return errors.Wrapf(ErrPinUsed, "pin %v", p)
	}
	e.pins[p] = true
	return nil
}

// OutputPin creates a new emulated output pin.
func (e *Emu) OutputPin(p int) (OutputPin, error) {
	return e.NewOutputPin(p)
}

// IRQLine creates a new emulated irq line.
func (e *Emu) IRQLine(p int) (IRQLine, error) {
	return e.NewIRQLine(p)
}

// NewOutputPin is OutputPin returning the concrete type.
func (e *Emu) NewOutputPin(p int) (*EmuPin, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reserve(p); err != nil {
		return nil, err
	}
	e.out = &EmuPin{gpioPin: p}
	e.connect()
	return e.out, nil
}

// NewIRQLine is IRQLine returning the concrete type.
func (e *Emu) NewIRQLine(p int) (*EmuIRQ, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reserve(p); err != nil {
		return nil, err
	}
	e.irq = &EmuIRQ{gpioPin: p}
	e.connect()
	return e.irq, nil
}

// connect installs the loopback jumper once both pins exist.
func (e *Emu) connect() {
	if !e.Loopback || e.out == nil || e.irq == nil {
		return
	}
	e.out.mu.Lock()
	e.out.jumper = e.irq
	e.out.mu.Unlock()
}

// Pin returns the pin number that this Pin represents.
func (p *EmuPin) Pin() int {
	return p.gpioPin
}

// Set records the level. With loopback, a low to high transition is delivered
// to the irq line on a separate goroutine, like a hardware interrupt.
func (p *EmuPin) Set(v port.Level) error {
	p.mu.Lock()
	if p.SetErr != nil {
		err := p.SetErr
		p.mu.Unlock()
		return err
	}

	rising := p.level == port.Low && v == port.High
	p.level = v
	p.writes = append(p.writes, v)
	jumper := p.jumper
	p.mu.Unlock()

	if !rising || jumper == nil {
		return nil
	}
	// the edge belongs to the handler attached now, a handler attached
	// later must not see it
	if gen, ok := jumper.generation(); ok {
		go jumper.deliver(gen)
	}
	return nil
}

// Level returns the last written level.
func (p *EmuPin) Level() port.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Writes returns all levels written so far.
func (p *EmuPin) Writes() []port.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]port.Level(nil), p.writes...)
}

// Reset clears the recorded writes.
func (p *EmuPin) Reset() {
	p.mu.Lock()
	p.writes = nil
	p.mu.Unlock()
}

// Close drives the pin low.
func (p *EmuPin) Close() error {
	p.mu.Lock()
	p.level = port.Low
	p.mu.Unlock()
	return nil
}

// Pin returns the pin number that this line represents.
func (l *EmuIRQ) Pin() int {
	return l.gpioPin
}

// Attach installs the handler.
func (l *EmuIRQ) Attach(handler func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.AttachErr != nil {
		return l.AttachErr
	}
	if l.handler != nil {
		return ErrAttached
	}
	l.handler = handler
	l.attaches++
	return nil
}

// Detach removes the handler. It waits for a running handler, once Detach
// returns the handler is not called anymore.
func (l *EmuIRQ) Detach() error {
	l.running.Lock()
	defer l.running.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handler == nil {
		return ErrNotAttached
	}
	l.handler = nil
	l.detaches++
	return nil
}

// Attached reports whether a handler is installed.
func (l *EmuIRQ) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler != nil
}

// Attaches returns how often a handler was attached and detached.
func (l *EmuIRQ) Attaches() (attaches, detaches int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attaches, l.detaches
}

// Close removes a remaining handler and waits for it to return.
func (l *EmuIRQ) Close() error {
	l.running.Lock()
	defer l.running.Unlock()

	l.mu.Lock()
	l.handler = nil
	l.mu.Unlock()
	return nil
}

// EmuEdge emulates a level change on the irq line. The handler is only called
// for rising edges, since the line watches rising edges only.
// It returns whether a handler was called.
func (l *EmuIRQ) EmuEdge(edge port.Edge) bool {
	switch edge {
	case port.EdgeRising, port.EdgeBoth:
	default:
		return false
	}

	gen, ok := l.generation()
	if !ok {
		return false
	}
	return l.deliver(gen)
}

// generation returns the number of the attached handler, ok is false if no
// handler is attached.
func (l *EmuIRQ) generation() (gen int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attaches, l.handler != nil
}

// deliver calls the handler if it is still the one numbered gen.
func (l *EmuIRQ) deliver(gen int) bool {
	l.running.RLock()
	defer l.running.RUnlock()

	l.mu.Lock()
	h := l.handler
	if l.attaches != gen {
		h = nil
	}
	l.mu.Unlock()

	if h == nil {
		return false
	}
	h()
	return true
}
