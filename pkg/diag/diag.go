// Package diag looks up the kernel irq behind the watched gpio line, to tell a
// missing jumper apart from an interrupt that reached the kernel but not us.
package diag

import (
	"strings"

	"irqlat/pkg/irqlat"

	"github.com/thediveo/irks"
	"github.com/womat/debug"
)

// Line is a kernel irq with an action named after the consumer.
type Line struct {
	Num        uint               `json:"num"`
	Actions    string             `json:"actions"`
	Affinities irks.CPUAffinities `json:"affinities"`
	Count      uint64             `json:"count"`
}

// Lines returns the kernel irqs having an action containing consumer.
func Lines(consumer string) []Line {
	lines := []Line{}
	for d := range irks.AllIRQDetails() {
		if !hasAction(d.Actions, consumer) {
			continue
		}
		lines = append(lines, Line{
			Num:        d.Num,
			Actions:    d.Actions,
			Affinities: d.Affinities,
			Count:      Count(d.Num),
		})
	}
	return lines
}

// Lookup returns the first kernel irq having an action containing consumer.
func Lookup(consumer string) (uint, bool) {
	for d := range irks.AllIRQDetails() {
		if hasAction(d.Actions, consumer) {
			return d.Num, true
		}
	}
	return 0, false
}

// Count returns the interrupt count of irq summed over all online CPUs.
func Count(irq uint) (n uint64) {
	for i := range irks.CountersFor([]uint{irq}) {
		for _, c := range i.Counters {
			n += c
		}
	}
	return n
}

func hasAction(actions, consumer string) bool {
	if consumer == "" {
		return false
	}
	for _, a := range strings.Split(actions, ",") {
		if strings.Contains(strings.TrimSpace(a), consumer) {
			return true
		}
	}
	return false
}

// Probe is an irqlat.Observer logging the kernel's view of a timed out test.
type Probe struct {
	consumer string

	irq   uint
	found bool
	count uint64
}

// NewProbe creates a probe for the irq action named consumer.
func NewProbe(consumer string) *Probe {
	return &Probe{consumer: consumer}
}

// Attached snapshots the interrupt count while the handler is attached.
func (p *Probe) Attached(pin int) {
	p.irq, p.found = Lookup(p.consumer)
	if !p.found {
		debug.TraceLog.Printf("no kernel irq action %q for gpio %v", p.consumer, pin)
		return
	}
	p.count = Count(p.irq)
	debug.TraceLog.Printf("gpio %v is kernel irq %v, count %v", pin, p.irq, p.count)
}

// Finished logs whether the kernel saw the edge of a timed out test.
func (p *Probe) Finished(pin int, o irqlat.Outcome) {
	if o != irqlat.TimedOut || !p.found {
		return
	}

	switch n := Count(p.irq) - p.count; n {
	case 0:
		debug.ErrorLog.Printf("kernel irq %v of gpio %v didn't fire, check the jumper", p.irq, pin)
	default:
		debug.ErrorLog.Printf("kernel irq %v of gpio %v fired %v times but no edge event was delivered", p.irq, pin, n)
	}
}
