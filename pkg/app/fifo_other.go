//go:build !linux

package app

import (
	"os"

	"github.com/pkg/errors"
)

func openFifo(path string) (*os.File, bool, error) {
	return nil, false, errors.Errorf("control fifo %v: not supported on this platform", path)
}
