package w5500

import (
	"context"
)

// Write sends payload to addr within block bsb as one bus transaction.
func (d *Device) Write(ctx context.Context, addr uint16, bsb BlockSelect, payload []byte) error {
	return d.tr.write(ctx, addr, bsb, payload)
}

// Read returns n bytes from addr within block bsb as one bus transaction.
func (d *Device) Read(ctx context.Context, addr uint16, bsb BlockSelect, n uint16) ([]byte, error) {
	return d.tr.read(ctx, addr, bsb, n)
}

// Read8 returns a single register byte.
func (d *Device) Read8(ctx context.Context, addr uint16, bsb BlockSelect) (uint8, error) {
	buf, err := d.tr.read(ctx, addr, bsb, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Write8 sets a single register byte.
func (d *Device) Write8(ctx context.Context, addr uint16, bsb BlockSelect, v uint8) error {
	return d.tr.write(ctx, addr, bsb, []byte{v})
}

// Read16 returns a big-endian register pair.
func (d *Device) Read16(ctx context.Context, addr uint16, bsb BlockSelect) (uint16, error) {
	buf, err := d.tr.read(ctx, addr, bsb, 2)
	if err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// Write16 sets a big-endian register pair.
func (d *Device) Write16(ctx context.Context, addr uint16, bsb BlockSelect, v uint16) error {
	return d.tr.write(ctx, addr, bsb, []byte{byte(v >> 8), byte(v)})
}
