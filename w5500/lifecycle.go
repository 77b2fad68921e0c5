package w5500

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// The reset line must be held and then left to settle for fixed, hardware-mandated periods.
const (
	resetHold   = 10 * time.Millisecond
	resetSettle = 10 * time.Millisecond
)

// Raw mode defaults.
const (
	DefaultMTU           = 1514
	DefaultBufferKB      = 16
	DefaultInterruptMask = 0x1F
)

// Reset hard-resets the chip through the reset pin, or through the software reset bit of the
// mode register when no pin is wired.
func (d *Device) Reset(ctx context.Context) error {
	if d.resetPin != nil {
		if err := d.resetPin.Set(ctx, false); err != nil {
			return errors.Wrap(err, "asserting reset")
		}
		if err := d.sleep(ctx, resetHold); err != nil {
			return err
		}
		if err := d.resetPin.Set(ctx, true); err != nil {
			return errors.Wrap(err, "releasing reset")
		}
		return d.sleep(ctx, resetSettle)
	}

	if err := d.Write8(ctx, RegMode, CommonBlock, ModeReset); err != nil {
		return err
	}
	if err := d.waitClear(ctx, RegMode, CommonBlock, ModeReset, d.policy, "software reset"); err != nil {
		return err
	}
	return d.sleep(ctx, resetSettle)
}

// Version reads the chip identification register.
func (d *Device) Version(ctx context.Context) (uint8, error) {
	return d.Read8(ctx, RegVersion, CommonBlock)
}

// Init resets the chip and verifies it identifies as a W5500. On a mismatch nothing beyond the
// reset has been written.
func (d *Device) Init(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := d.Reset(ctx); err != nil {
		return errors.Wrap(err, "resetting chip")
	}
	version, err := d.Version(ctx)
	if err != nil {
		return errors.Wrap(err, "reading chip version")
	}
	if version != ChipVersion {
		return errors.Wrapf(ErrVersionMismatch, "read 0x%02x, want 0x%02x", version, ChipVersion)
	}
	d.logger.Infof("W5500 detected, version 0x%02x", version)
	return nil
}

// RawModeOptions tunes ConfigureRawMode. Zero fields take the defaults.
type RawModeOptions struct {
	MTU           uint16
	RXBufferKB    uint8
	TXBufferKB    uint8
	InterruptMask uint8
}

func (o RawModeOptions) withDefaults() RawModeOptions {
	if o.MTU == 0 {
		o.MTU = DefaultMTU
	}
	if o.RXBufferKB == 0 {
		o.RXBufferKB = DefaultBufferKB
	}
	if o.TXBufferKB == 0 {
		o.TXBufferKB = DefaultBufferKB
	}
	if o.InterruptMask == 0 {
		o.InterruptMask = DefaultInterruptMask
	}
	return o
}

// ConfigureRawMode initializes the chip and opens socket 0 in MACRAW mode, so that it carries
// whole Ethernet frames, then starts background interrupt dispatch.
func (d *Device) ConfigureRawMode(ctx context.Context, opts RawModeOptions) error {
	if err := d.Init(ctx); err != nil {
		return err
	}
	opts = opts.withDefaults()
	const sn Socket = 0
	reg := sn.RegisterBlock()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"mode", func() error { return d.Write8(ctx, SnMR, reg, SnModeMACRAW) }},
		{"mtu", func() error { return d.Write16(ctx, SnMSSR, reg, opts.MTU) }},
		{"rx buffer size", func() error { return d.Write8(ctx, SnRXBufSize, reg, opts.RXBufferKB) }},
		{"tx buffer size", func() error { return d.Write8(ctx, SnTXBufSize, reg, opts.TXBufferKB) }},
		{"socket interrupt mask", func() error { return d.Write8(ctx, SnIMR, reg, opts.InterruptMask) }},
		{"global interrupt mask", func() error { return d.Write8(ctx, RegSIMR, CommonBlock, 1<<sn) }},
		{"open", func() error { return d.Command(ctx, sn, CmdOpen) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return errors.Wrapf(err, "configuring raw mode: %s", step.name)
		}
	}
	d.logger.Debugw("socket opened in MACRAW mode", "socket", sn, "mtu", opts.MTU,
		"rx_kb", opts.RXBufferKB, "tx_kb", opts.TXBufferKB)
	return d.Start()
}

// PHY reads the PHY configuration register.
func (d *Device) PHY(ctx context.Context) (PHYStatus, error) {
	v, err := d.Read8(ctx, RegPHYCFGR, CommonBlock)
	return PHYStatus(v), err
}

// LinkUp reports whether the PHY has link.
func (d *Device) LinkUp(ctx context.Context) (bool, error) {
	status, err := d.PHY(ctx)
	if err != nil {
		return false, err
	}
	return status.Link(), nil
}

// Speed describes the negotiated link, e.g. "Full 100Mbps based" or "Link Down".
func (d *Device) Speed(ctx context.Context) (string, error) {
	status, err := d.PHY(ctx)
	if err != nil {
		return "", err
	}
	return status.String(), nil
}
