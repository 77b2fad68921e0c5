package w5500

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// PollPolicy bounds a wait for the chip to clear a register. The zero value spins until the
// chip answers, which is what the hardware contract promises.
type PollPolicy struct {
	// MaxPolls gives up after this many reads. Zero means no limit.
	MaxPolls int
	// Timeout gives up once this much time has passed on the device clock. Zero means no limit.
	Timeout time.Duration
	// Interval is slept between reads. Zero busy-polls.
	Interval time.Duration
}

// Command writes cmd to the socket's command register and blocks until the chip clears it,
// subject to the Device's poll policy and ctx.
func (d *Device) Command(ctx context.Context, sn Socket, cmd Command) error {
	return d.CommandWithPolicy(ctx, sn, cmd, d.policy)
}

// CommandWithPolicy is Command with an explicit poll policy.
func (d *Device) CommandWithPolicy(ctx context.Context, sn Socket, cmd Command, policy PollPolicy) error {
	if err := sn.validate(); err != nil {
		return err
	}
	reg := sn.RegisterBlock()
	if err := d.Write8(ctx, SnCR, reg, uint8(cmd)); err != nil {
		return err
	}
	if err := d.waitClear(ctx, SnCR, reg, 0xFF, policy, cmd.String()); err != nil {
		return errors.Wrapf(err, "socket %d", sn)
	}
	return nil
}

// waitClear reads addr until every bit in mask reads back zero.
func (d *Device) waitClear(
	ctx context.Context,
	addr uint16,
	bsb BlockSelect,
	mask uint8,
	policy PollPolicy,
	what string,
) error {
	var deadline time.Time
	if policy.Timeout > 0 {
		deadline = d.clock.Now().Add(policy.Timeout)
	}
	for polls := 1; ; polls++ {
		v, err := d.Read8(ctx, addr, bsb)
		if err != nil {
			return err
		}
		if v&mask == 0 {
			return nil
		}
		if policy.MaxPolls > 0 && polls >= policy.MaxPolls {
			return errors.Wrapf(ErrCommandTimeout, "%s still pending after %d polls", what, polls)
		}
		if !deadline.IsZero() && !d.clock.Now().Before(deadline) {
			return errors.Wrapf(ErrCommandTimeout, "%s still pending after %s", what, policy.Timeout)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if policy.Interval > 0 {
			if err := d.sleep(ctx, policy.Interval); err != nil {
				return err
			}
		}
	}
}
