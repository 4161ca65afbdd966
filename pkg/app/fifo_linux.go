//go:build linux

package app

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// openFifo creates the named pipe if it doesn't exist and opens it.
// created reports whether the fifo was created.
// The fifo is opened read-write: the open doesn't block waiting for a writer
// and reads never see EOF when a writer closes.
func openFifo(path string) (f *os.File, created bool, err error) {
	fi, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, false, err
		}
		if err := unix.Mkfifo(path, 0o620); err != nil {
			return nil, false, errors.Wrap(err, "mkfifo")
		}
		created = true
	case err != nil:
		return nil, false, err
	case fi.Mode()&os.ModeNamedPipe == 0:
		return nil, false, errors.Errorf("%v exists and is not a fifo", path)
	}

	f, err = os.OpenFile(path, os.O_RDWR, 0)
	return f, created, err
}
