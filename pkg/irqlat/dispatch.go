package irqlat

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/womat/debug"
)

// latencyCommand is the first command byte selecting the latency test.
// Any other byte selects the toggle test.
const latencyCommand = '1'

// Result is the result of a dispatched command.
type Result struct {
	// Consumed is the number of command bytes consumed, 0 for an empty command.
	Consumed int `json:"consumed"`
	// Test is the test run by the command.
	Test Test `json:"test,omitempty"`
	// Outcome of the test.
	Outcome Outcome `json:"outcome,omitempty"`
	// Time is the time the command was received.
	Time time.Time `json:"time"`
}

// Dispatcher maps commands to tests.
type Dispatcher struct {
	device     *Device
	timeout    time.Duration
	iterations int

	// ctx is used by Write, which can't take a context.
	ctx       context.Context
	listeners []func(Result)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout sets the latency test timeout.
func WithTimeout(t time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.timeout = t
	}
}

// WithIterations sets the number of toggle test cycles.
func WithIterations(n int) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.iterations = n
	}
}

// WithContext sets the context used by Write.
func WithContext(ctx context.Context) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.ctx = ctx
	}
}

// WithListener adds a function called with every successful result.
// Listeners run on the dispatching goroutine and must not block.
func WithListener(l func(Result)) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.listeners = append(dp.listeners, l)
	}
}

// NewDispatcher creates a dispatcher for the device.
func NewDispatcher(d *Device, opts ...DispatcherOption) *Dispatcher {
	dp := &Dispatcher{
		device:     d,
		timeout:    DefaultTimeout,
		iterations: DefaultIterations,
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(dp)
	}
	return dp
}

// Dispatch runs the test selected by the first command byte and waits for it.
// An empty command returns immediately without touching the device.
// All bytes of a command are consumed, only the first one is evaluated.
func (dp *Dispatcher) Dispatch(ctx context.Context, cmd []byte) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, nil
	}

	r := Result{Time: time.Now()}
	var err error

	if cmd[0] == latencyCommand {
		r.Test = LatencyTest
		debug.DebugLog.Printf("start latency test, timeout %v", dp.timeout)

		r.Outcome, err = dp.device.RunLatency(ctx, dp.timeout)
		if err == nil && r.Outcome == TimedOut {
			debug.ErrorLog.Print("timed out waiting for interrupt")
			debug.ErrorLog.Print("did you forget to jumper the pins?")
		}
	} else {
		r.Test = ToggleTest
		debug.DebugLog.Printf("start toggle test, %v iterations", dp.iterations)

		if err = dp.device.RunToggle(ctx, dp.iterations); err == nil {
			r.Outcome = Completed
		}
	}

	if err != nil {
		debug.ErrorLog.Printf("%v test: %v", r.Test, err)
		return Result{Test: r.Test, Time: r.Time}, err
	}

	r.Consumed = len(cmd)
	debug.InfoLog.Printf("%v test %v", r.Test, r.Outcome)

	for _, l := range dp.listeners {
		l(r)
	}
	return r, nil
}

// Write implements io.Writer: each write is one command.
func (dp *Dispatcher) Write(cmd []byte) (int, error) {
	r, err := dp.Dispatch(dp.ctx, cmd)
	return r.Consumed, err
}

// maxCommand is the read size of Serve. It is PIPE_BUF, the largest write
// that a fifo delivers in one piece.
const maxCommand = 4096

// Serve reads commands from the control channel until r returns io.EOF or ctx
// is done. Each read is dispatched as one command. Failed tests are logged and
// don't stop the loop; a failing read returns ErrInvalidInput.
//
// A fifo keeps no write boundaries: writes up to maxCommand bytes are read in
// one piece, but writes queued while a test runs are read as one command.
func (dp *Dispatcher) Serve(ctx context.Context, r io.Reader) error {
	buf := make([]byte, maxCommand)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = dp.Dispatch(ctx, buf[:n])
		}

		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		default:
			return errors.Wrap(ErrInvalidInput, err.Error())
		}
	}
}
