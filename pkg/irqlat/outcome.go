package irqlat

import "github.com/pkg/errors"

// Outcome is the result of a test. It doesn't carry any timing: a Completed
// latency test shows a clean pulse on the scope, a TimedOut one means the
// interrupt never arrived.
type Outcome int

const (
	_ Outcome = iota
	// Completed means the edge was handled before the deadline, or the toggle loop finished.
	Completed
	// TimedOut means no edge was handled before the deadline.
	// Most likely the pins are not jumpered.
	TimedOut
)

var outcomeNames = map[Outcome]string{
	Completed: "completed",
	TimedOut:  "timedout",
}

func (o Outcome) String() string {
	return outcomeNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	for k, v := range outcomeNames {
		if v == string(b) {
			*o = k
			return nil
		}
	}
	return errors.Errorf("unknown outcome %q", b)
}

// Test identifies the test run by a command.
type Test int

const (
	_ Test = iota
	// LatencyTest is the irq latency test.
	LatencyTest
	// ToggleTest is the gpio toggle speed test.
	ToggleTest
)

func (t Test) String() string {
	switch t {
	case LatencyTest:
		return "latency"
	case ToggleTest:
		return "toggle"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Test) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
