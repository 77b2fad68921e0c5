//go:build linux

package pins

import (
	"context"
	"sync"

	"github.com/mkch/gpio"
	"go.viam.com/utils"
)

type gpioPin struct {
	// These values should both be considered immutable.
	devicePath  string
	offset      uint32
	initialHigh bool

	mu   sync.Mutex
	line *gpio.Line
}

// NewOutputPin requests an output line on the given GPIO character device, driven to initialHigh.
func NewOutputPin(devicePath string, offset int, initialHigh bool) (OutputPin, error) {
	if devicePath == "" {
		devicePath = DefaultGPIOChip
	}
	pin := &gpioPin{devicePath: devicePath, offset: uint32(offset), initialHigh: initialHigh}
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if err := pin.openGpioFd(); err != nil {
		return nil, err
	}
	return pin, nil
}

// This is a private helper function that should only be called when the mutex is locked. It sets
// pin.line to a valid struct or returns an error.
func (pin *gpioPin) openGpioFd() error {
	if pin.line != nil {
		return nil
	}

	chip, err := gpio.OpenChip(pin.devicePath)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	var value byte
	if pin.initialHigh {
		value = 1
	}
	line, err := chip.OpenLine(pin.offset, value, gpio.Output, "w5500")
	if err != nil {
		return err
	}
	pin.line = line
	return nil
}

func (pin *gpioPin) Set(ctx context.Context, isHigh bool) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if err := pin.openGpioFd(); err != nil {
		return err
	}
	var value byte
	if isHigh {
		value = 1
	}
	return pin.line.SetValue(value)
}

func (pin *gpioPin) Close() error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.line == nil {
		return nil
	}
	err := pin.line.Close()
	pin.line = nil
	return err
}
