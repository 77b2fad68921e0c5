package w5500

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/viam-modules/w5500/w5500/fake"
)

func TestCommandWaitsForClear(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	chip.SetCommandLatency(3)

	test.That(t, dev.Command(context.Background(), 2, CmdRecv), test.ShouldBeNil)
	txns := chip.Transactions()
	test.That(t, txns[0].Write, test.ShouldBeTrue)
	test.That(t, txns[0].Addr, test.ShouldEqual, SnCR)
	test.That(t, txns[0].Data, test.ShouldResemble, []byte{byte(CmdRecv)})
	test.That(t, countCommandPolls(txns, 2), test.ShouldEqual, 4)
	test.That(t, chip.Reg8(uint8(Socket(2).RegisterBlock()), SnCR), test.ShouldEqual, 0)
}

func TestCommandDefaultIsUnbounded(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	chip.SetCommandLatency(5000)
	test.That(t, dev.Command(context.Background(), 0, CmdSend), test.ShouldBeNil)
	test.That(t, countCommandPolls(chip.Transactions(), 0), test.ShouldEqual, 5001)
}

func TestCommandMaxPolls(t *testing.T) {
	dev, chip := newTestDevice(t, Config{Commands: PollPolicy{MaxPolls: 5}})
	chip.SetCommandLatency(-1)

	err := dev.Command(context.Background(), 1, CmdSend)
	test.That(t, errors.Is(err, ErrCommandTimeout), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "SEND")
	test.That(t, countCommandPolls(chip.Transactions(), 1), test.ShouldEqual, 5)

	// An explicit policy overrides the device default.
	chip.ResetTransactions()
	err = dev.CommandWithPolicy(context.Background(), 1, CmdSend, PollPolicy{MaxPolls: 2})
	test.That(t, errors.Is(err, ErrCommandTimeout), test.ShouldBeTrue)
	test.That(t, countCommandPolls(chip.Transactions(), 1), test.ShouldEqual, 2)
}

func TestCommandDeadline(t *testing.T) {
	mock := clock.NewMock()
	dev, chip := newTestDevice(t, Config{
		Clock:    mock,
		Commands: PollPolicy{Timeout: 10 * time.Millisecond},
	})
	chip.SetCommandLatency(-1)
	chip.OnTransaction(func(txn fake.Transaction) {
		mock.Add(time.Millisecond)
	})

	err := dev.Command(context.Background(), 0, CmdRecv)
	test.That(t, errors.Is(err, ErrCommandTimeout), test.ShouldBeTrue)
	// The deadline starts after the command write, so ten 1ms polls exhaust it.
	test.That(t, countCommandPolls(chip.Transactions(), 0), test.ShouldEqual, 10)
}

func TestCommandContextCancel(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	chip.SetCommandLatency(-1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var n int
	chip.OnTransaction(func(txn fake.Transaction) {
		n++
		if n == 4 {
			cancel()
		}
	})

	err := dev.Command(ctx, 0, CmdSend)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, countCommandPolls(chip.Transactions(), 0), test.ShouldEqual, 3)
}
