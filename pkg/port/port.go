// Package port holds the definition of a physical port
package port

// Level is the logical level of a line.
type Level int

const (
	// Low indicates a logical 0.
	Low Level = 0
	// High indicates a logical 1.
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Edge indicates the type of change to the line level that triggers the irq handler.
type Edge int

const (
	// EdgeNone disables edge detection.
	EdgeNone Edge = iota
	// EdgeRising indicates an inactive to active event (low to high).
	EdgeRising
	// EdgeFalling indicates an active to inactive event (high to low).
	EdgeFalling
	// EdgeBoth indicates both rising and falling edges.
	EdgeBoth
)

