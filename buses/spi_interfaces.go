// Package buses defines the serial bus abstraction the W5500 driver talks through, plus a
// periph.io backed implementation for Linux spidev devices.
package buses

import (
	"context"
)

// SPI represents a shareable SPI bus.
type SPI interface {
	// OpenHandle locks the shared bus and returns a handle interface that MUST be closed when done.
	OpenHandle() (SPIHandle, error)
	Close(ctx context.Context) error
}

// SPIHandle is similar to an io handle. It MUST be closed to release the bus.
type SPIHandle interface {
	// Xfer performs a single SPI transfer, that is, the complete transaction from chipselect
	// enable to chipselect disable. SPI transfers are synchronous, number of bytes received will
	// be equal to the number of bytes sent. Write-only transfers can just discard the returned
	// bytes. Read-only transfers transmit a header and continue with null bytes to equal the
	// expected size of the returning data.
	Xfer(
		ctx context.Context,
		baud uint,
		chipSelect string,
		mode uint,
		tx []byte,
	) ([]byte, error)

	// Close closes the handle and releases the lock on the bus.
	Close() error
}
