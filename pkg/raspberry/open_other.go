//go:build !linux

package raspberry

import "github.com/pkg/errors"

func openChip(name, _ string) (GPIO, error) {
	return nil, errors.Wrapf(ErrUnsupported, "gpio chip %q", name)
}

func openMem() (GPIO, error) {
	return nil, errors.Wrap(ErrUnsupported, "gpiomem")
}
