// Package pins provides the GPIO roles a W5500 needs besides the SPI bus: the reset and manual
// chip-select outputs and the falling-edge interrupt input.
package pins

import (
	"context"
)

// DefaultGPIOChip is the character device used when no chip is configured.
const DefaultGPIOChip = "/dev/gpiochip0"

// OutputPin is a digital output line.
type OutputPin interface {
	Set(ctx context.Context, isHigh bool) error
	Close() error
}

// InterruptLine delivers one notification per falling edge on an input line. Edges that arrive
// while a notification is still pending are coalesced into it.
type InterruptLine interface {
	Edges() <-chan struct{}
	Close() error
}
