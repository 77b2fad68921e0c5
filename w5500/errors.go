package w5500

import "github.com/pkg/errors"

var (
	// ErrVersionMismatch is returned when the identification register does not hold ChipVersion.
	ErrVersionMismatch = errors.New("w5500: unexpected chip version")
	// ErrCommandTimeout is returned when a bounded wait for the chip to acknowledge gives up.
	ErrCommandTimeout = errors.New("w5500: command not acknowledged")
	// ErrInvalidSocket is returned for socket indexes outside 0..7.
	ErrInvalidSocket = errors.New("w5500: invalid socket")
	// ErrClosed is returned by operations on a closed Device.
	ErrClosed = errors.New("w5500: device closed")
)
