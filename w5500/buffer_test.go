package w5500

import (
	"bytes"
	"context"
	"testing"

	"go.viam.com/test"
)

func TestSendAdvancesTXPointer(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	ctx := context.Background()
	const sn Socket = 1
	reg := uint8(sn.RegisterBlock())
	data := []byte("0123456789abcdef")

	for _, start := range []uint16{0x0000, 0x07F8, 0xFFF8} {
		chip.SetReg16(reg, SnTXWR, start)
		test.That(t, dev.Send(ctx, sn, data), test.ShouldBeNil)
		test.That(t, chip.Reg16(reg, SnTXWR), test.ShouldEqual, start+uint16(len(data)))
		for i, b := range data {
			test.That(t, chip.Reg8(uint8(sn.TXBufferBlock()), start+uint16(i)), test.ShouldEqual, b)
		}
	}
	test.That(t, chip.Reg16(reg, SnTXWR), test.ShouldEqual, 0x0008)
}

func TestSendEmptyTouchesNothing(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	test.That(t, dev.Send(context.Background(), 0, nil), test.ShouldBeNil)
	test.That(t, dev.Send(context.Background(), 0, []byte{}), test.ShouldBeNil)
	test.That(t, chip.Transactions(), test.ShouldBeEmpty)
}

func TestSendSingleBufferTransaction(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	data := bytes.Repeat([]byte{0x5A}, 1500)
	test.That(t, dev.Send(context.Background(), 0, data), test.ShouldBeNil)
	txns := chip.Transactions()
	test.That(t, len(txns), test.ShouldEqual, 3)
	test.That(t, txns[1].Block, test.ShouldEqual, uint8(Socket(0).TXBufferBlock()))
	test.That(t, len(txns[1].Data), test.ShouldEqual, 1500)
}

func TestReceiveAdvancesRXPointer(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	ctx := context.Background()
	const sn Socket = 3
	reg := uint8(sn.RegisterBlock())
	payload := []byte("frame payload")

	for _, start := range []uint16{0x0000, 0x07FA, 0xFFFE} {
		chip.SetReg16(reg, SnRXRD, start)
		chip.SetReg16(reg, SnRXWR, start)
		chip.InjectFrame(int(sn), payload)
		length := chip.Reg16(reg, SnRXRSR)
		test.That(t, length, test.ShouldEqual, len(payload)+RecvHeaderLen)

		got, err := dev.Receive(ctx, sn, length)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldResemble, payload)
		test.That(t, chip.Reg16(reg, SnRXRD), test.ShouldEqual, start+length)
	}
	test.That(t, chip.Reg16(reg, SnRXRD), test.ShouldEqual, uint16(0xFFFE+len(payload)+RecvHeaderLen))
}

func TestReceiveZeroTouchesNothing(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	got, err := dev.Receive(context.Background(), 0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldBeNil)
	test.That(t, chip.Transactions(), test.ShouldBeEmpty)
}

func TestReceiveHeaderOnly(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	const sn Socket = 0
	got, err := dev.Receive(context.Background(), sn, RecvHeaderLen)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldBeNil)
	txns := chip.Transactions()
	test.That(t, countTxns(txns, sn.RXBufferBlock(), false), test.ShouldEqual, 0)
	test.That(t, chip.Reg16(uint8(sn.RegisterBlock()), SnRXRD), test.ShouldEqual, RecvHeaderLen)
}

func TestDiscard(t *testing.T) {
	dev, chip := newTestDevice(t, Config{})
	const sn Socket = 6
	reg := uint8(sn.RegisterBlock())
	chip.SetReg16(reg, SnRXRD, 0xFFF0)

	test.That(t, dev.Discard(context.Background(), sn, 0x20), test.ShouldBeNil)
	test.That(t, chip.Reg16(reg, SnRXRD), test.ShouldEqual, 0x0010)
	txns := chip.Transactions()
	test.That(t, len(txns), test.ShouldEqual, 2)
	test.That(t, countTxns(txns, sn.RXBufferBlock(), false), test.ShouldEqual, 0)
}
