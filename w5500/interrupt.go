package w5500

import (
	"context"

	"go.uber.org/multierr"
)

// Dispatch drains the chip's interrupt flags once: it acknowledges the global register, then walks
// the pending sockets in ascending order and handles their events. Bits it does not know are
// ignored. A socket whose handling fails does not stop the walk; the failures are combined into
// the returned error. Dispatch is not reentrant; a receive callback must not call it.
func (d *Device) Dispatch(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	ir, err := d.Read8(ctx, RegIR, CommonBlock)
	if err != nil {
		return err
	}
	if err := d.Write8(ctx, RegIR, CommonBlock, ir); err != nil {
		return err
	}
	sir, err := d.Read8(ctx, RegSIR, CommonBlock)
	if err != nil {
		return err
	}
	var errs error
	for sn := Socket(0); sn < NumSockets; sn++ {
		bit := uint8(1) << sn
		if sir&bit == 0 {
			continue
		}
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := d.Write8(ctx, RegSIR, CommonBlock, bit); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, d.handleSocket(ctx, sn))
	}
	return errs
}

// pending reports whether any socket still has an interrupt latched.
func (d *Device) pending(ctx context.Context) (bool, error) {
	sir, err := d.Read8(ctx, RegSIR, CommonBlock)
	if err != nil {
		return false, err
	}
	return sir != 0, nil
}

func (d *Device) handleSocket(ctx context.Context, sn Socket) error {
	reg := sn.RegisterBlock()
	ir, err := d.Read8(ctx, SnIR, reg)
	if err != nil {
		return err
	}
	for _, ev := range eventOrder {
		if ir&uint8(ev) == 0 {
			continue
		}
		if err := d.Write8(ctx, SnIR, reg, uint8(ev)); err != nil {
			return err
		}
		d.logger.Debugw("socket event", "socket", sn, "event", ev.String())
		if fn := d.events.Load(); fn != nil {
			(*fn)(sn, ev)
		}
		if ev == EventReceive {
			if err := d.handleReceive(ctx, sn); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleReceive moves the pending record to the callback, or drops it when there is none, then
// acknowledges with RECV. The callback runs without opMu held so it may Transmit.
func (d *Device) handleReceive(ctx context.Context, sn Socket) error {
	cb := d.callback.Load()
	data, err := func() ([]byte, error) {
		d.opMu.Lock()
		defer d.opMu.Unlock()
		length, err := d.Read16(ctx, SnRXRSR, sn.RegisterBlock())
		if err != nil {
			return nil, err
		}
		if cb == nil {
			d.logger.Debugw("no receive callback, discarding", "socket", sn, "length", length)
			return nil, d.Discard(ctx, sn, length)
		}
		return d.Receive(ctx, sn, length)
	}()
	if err != nil {
		return err
	}
	if cb != nil {
		(*cb)(sn, data)
	}

	d.opMu.Lock()
	defer d.opMu.Unlock()
	return d.Command(ctx, sn, CmdRecv)
}
