package w5500

import (
	"context"
)

// Send copies data into the socket's transmit ring at the chip's write pointer and advances the
// pointer by len(data). It does not issue SEND; see Transmit. Empty data touches nothing.
//
// The pointer is stored unmasked: the chip wraps buffer addressing against its configured buffer
// size itself.
func (d *Device) Send(ctx context.Context, sn Socket, data []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := sn.validate(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	reg := sn.RegisterBlock()
	ptr, err := d.Read16(ctx, SnTXWR, reg)
	if err != nil {
		return err
	}
	if err := d.Write(ctx, ptr, sn.TXBufferBlock(), data); err != nil {
		return err
	}
	return d.Write16(ctx, SnTXWR, reg, ptr+uint16(len(data)))
}

// Receive reads one record of length bytes from the socket's receive ring. The record's leading
// length header is skipped, so length-RecvHeaderLen payload bytes are returned, and the read
// pointer advances past the whole record. It does not issue RECV. A zero length touches nothing
// and returns nil.
func (d *Device) Receive(ctx context.Context, sn Socket, length uint16) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if err := sn.validate(); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	reg := sn.RegisterBlock()
	ptr, err := d.Read16(ctx, SnRXRD, reg)
	if err != nil {
		return nil, err
	}
	var data []byte
	if length > RecvHeaderLen {
		data, err = d.Read(ctx, ptr+RecvHeaderLen, sn.RXBufferBlock(), length-RecvHeaderLen)
		if err != nil {
			return nil, err
		}
	}
	if err := d.Write16(ctx, SnRXRD, reg, ptr+length); err != nil {
		return nil, err
	}
	return data, nil
}

// Discard advances the socket's read pointer past length bytes without transferring them.
func (d *Device) Discard(ctx context.Context, sn Socket, length uint16) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := sn.validate(); err != nil {
		return err
	}
	reg := sn.RegisterBlock()
	ptr, err := d.Read16(ctx, SnRXRD, reg)
	if err != nil {
		return err
	}
	return d.Write16(ctx, SnRXRD, reg, ptr+length)
}

// Transmit queues data on the socket and blocks until the chip acknowledges SEND.
func (d *Device) Transmit(ctx context.Context, sn Socket, data []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.opMu.Lock()
	defer d.opMu.Unlock()
	if err := d.Send(ctx, sn, data); err != nil {
		return err
	}
	return d.Command(ctx, sn, CmdSend)
}
