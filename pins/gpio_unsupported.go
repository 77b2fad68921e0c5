//go:build !linux

package pins

import (
	"github.com/pkg/errors"
)

var errUnsupported = errors.New("GPIO character devices are only supported on Linux")

// NewOutputPin is unsupported on this platform.
func NewOutputPin(devicePath string, offset int, initialHigh bool) (OutputPin, error) {
	return nil, errUnsupported
}

// NewInterruptLine is unsupported on this platform.
func NewInterruptLine(devicePath string, offset int) (InterruptLine, error) {
	return nil, errUnsupported
}
