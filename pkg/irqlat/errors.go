package irqlat

import "github.com/pkg/errors"

var (
	// ErrHandlerAttachFailed is returned if the irq line could not be attached,
	// e.g. because the line is used by someone else. No pin was toggled.
	ErrHandlerAttachFailed = errors.New("irq handler attach failed")
	// ErrHandlerDetachFailed is returned if the irq line could not be detached.
	ErrHandlerDetachFailed = errors.New("irq handler detach failed")
	// ErrCancelled is returned if the caller gave up while waiting for the
	// device gate or for the interrupt.
	ErrCancelled = errors.New("cancelled")
	// ErrInvalidInput is returned if a command could not be read from the control channel.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPinWrite is returned if the test pin could not be written.
	ErrPinWrite = errors.New("test pin write failed")
	// ErrClosed is returned by tests started after the device was closed.
	ErrClosed = errors.New("device closed")
)

// cancelled wraps the context error as ErrCancelled.
func cancelled(err error) error {
	return errors.Wrap(ErrCancelled, err.Error())
}
