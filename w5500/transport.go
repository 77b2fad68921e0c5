package w5500

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viam-modules/w5500/buses"
	"github.com/viam-modules/w5500/pins"
)

const (
	// DefaultBaud is the SPI clock the chip is driven at unless configured otherwise.
	DefaultBaud = 20_000_000
	// spiMode0 is clock polarity 0, phase 0.
	spiMode0   = 0
	headerSize = 3
)

// header builds the address and control phases that open every transaction.
func header(addr uint16, bsb BlockSelect, write bool) [headerSize]byte {
	ctrl := byte(bsb) << 3
	if write {
		ctrl |= controlWrite
	}
	return [headerSize]byte{byte(addr >> 8), byte(addr), ctrl}
}

// transport owns the bus for the lifetime of a Device. Every transaction holds mu from
// chip-select assert to deassert, so foreground and interrupt-driven traffic never interleave.
type transport struct {
	mu         sync.Mutex
	bus        buses.SPI
	chipSelect string
	baud       uint
	csPin      pins.OutputPin
}

func (t *transport) xfer(ctx context.Context, tx []byte) (rx []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hnd, err := t.bus.OpenHandle()
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, hnd.Close())
	}()

	if t.csPin != nil {
		if err := t.csPin.Set(ctx, false); err != nil {
			return nil, errors.Wrap(err, "asserting chip select")
		}
		defer func() {
			err = multierr.Combine(err, errors.Wrap(t.csPin.Set(ctx, true), "releasing chip select"))
		}()
	}
	return hnd.Xfer(ctx, t.baud, t.chipSelect, spiMode0, tx)
}

// write sends payload to addr within block bsb in a single transaction.
func (t *transport) write(ctx context.Context, addr uint16, bsb BlockSelect, payload []byte) error {
	if len(payload) > 0xFFFF {
		return errors.Errorf("payload of %d bytes exceeds the 16-bit address space", len(payload))
	}
	hdr := header(addr, bsb, true)
	tx := make([]byte, 0, headerSize+len(payload))
	tx = append(tx, hdr[:]...)
	tx = append(tx, payload...)
	if _, err := t.xfer(ctx, tx); err != nil {
		return errors.Wrapf(err, "spi write 0x%04x block %d", addr, bsb)
	}
	return nil
}

// read fetches n bytes from addr within block bsb in a single transaction.
func (t *transport) read(ctx context.Context, addr uint16, bsb BlockSelect, n uint16) ([]byte, error) {
	hdr := header(addr, bsb, false)
	tx := make([]byte, headerSize+int(n))
	copy(tx, hdr[:])
	rx, err := t.xfer(ctx, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "spi read 0x%04x block %d", addr, bsb)
	}
	if len(rx) != len(tx) {
		return nil, errors.Errorf("spi read 0x%04x block %d: got %d bytes, want %d", addr, bsb, len(rx), len(tx))
	}
	return rx[headerSize:], nil
}
