package fake

import (
	"context"
	"testing"

	"go.viam.com/test"
)

func xfer(t *testing.T, c *Chip, tx ...byte) []byte {
	t.Helper()
	hnd, err := c.OpenHandle()
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, hnd.Close(), test.ShouldBeNil) }()
	rx, err := hnd.Xfer(context.Background(), 1000, "0", 0, tx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(rx), test.ShouldEqual, len(tx))
	return rx
}

func TestVersionAndPHY(t *testing.T) {
	c := NewChip()
	rx := xfer(t, c, 0x00, 0x39, 0x00, 0x00)
	test.That(t, rx[3], test.ShouldEqual, 0x04)

	c.SetPHY(0x01)
	rx = xfer(t, c, 0x00, 0x2E, 0x00, 0x00)
	test.That(t, rx[3], test.ShouldEqual, 0x01)

	// Writes to read-only registers are ignored.
	xfer(t, c, 0x00, 0x39, 0x04, 0x77)
	test.That(t, c.Reg8(0, regVersion), test.ShouldEqual, 0x04)
}

func TestWriteOneToClear(t *testing.T) {
	c := NewChip()
	c.SetReg8(0, regIR, 0xF0)
	xfer(t, c, 0x00, 0x15, 0x04, 0x30)
	test.That(t, c.Reg8(0, regIR), test.ShouldEqual, 0xC0)

	c.RaiseInterrupt(2, 0x05)
	test.That(t, c.Reg8(0, regSIR), test.ShouldEqual, 1<<2)
	test.That(t, c.Reg8(2*4+1, snIR), test.ShouldEqual, 0x05)

	// Writing zero bits changes nothing.
	xfer(t, c, 0x00, 0x02, (2*4+1)<<3|0x04, 0x00)
	test.That(t, c.Reg8(2*4+1, snIR), test.ShouldEqual, 0x05)
	xfer(t, c, 0x00, 0x02, (2*4+1)<<3|0x04, 0x04)
	test.That(t, c.Reg8(2*4+1, snIR), test.ShouldEqual, 0x01)

	select {
	case <-c.Interrupt().Edges():
	default:
		t.Fatal("expected a pending edge after RaiseInterrupt")
	}
}

func TestCommandLatency(t *testing.T) {
	c := NewChip()
	c.SetCommandLatency(2)
	xfer(t, c, 0x00, 0x01, 1<<3|0x04, cmdRecv)

	var seen []byte
	for i := 0; i < 4; i++ {
		seen = append(seen, xfer(t, c, 0x00, 0x01, 1<<3, 0x00)[3])
	}
	test.That(t, seen, test.ShouldResemble, []byte{cmdRecv, cmdRecv, 0, 0})

	c.SetCommandLatency(-1)
	xfer(t, c, 0x00, 0x01, 1<<3|0x04, cmdRecv)
	for i := 0; i < 10; i++ {
		test.That(t, xfer(t, c, 0x00, 0x01, 1<<3, 0x00)[3], test.ShouldEqual, cmdRecv)
	}
}

func TestBufferWrap(t *testing.T) {
	c := NewChip()
	// Default 2KB buffers: address 0x07FF is the last byte, 0x0800 wraps to 0.
	xfer(t, c, 0x07, 0xFF, 2<<3|0x04, 0xAA, 0xBB)
	test.That(t, c.Reg8(2, 0x07FF), test.ShouldEqual, 0xAA)
	test.That(t, c.Reg8(2, 0x0000), test.ShouldEqual, 0xBB)
	test.That(t, c.Reg8(2, 0xF800), test.ShouldEqual, 0xBB)
}

func TestSendAndInject(t *testing.T) {
	c := NewChip()
	xfer(t, c, 0x00, 0x00, 2<<3|0x04, 'h', 'i')
	xfer(t, c, 0x00, 0x24, 1<<3|0x04, 0x00, 0x02)
	xfer(t, c, 0x00, 0x01, 1<<3|0x04, cmdSend)
	test.That(t, c.SentFrames(), test.ShouldResemble, [][]byte{[]byte("hi")})
	test.That(t, c.Reg16(1, snTXRD), test.ShouldEqual, 2)
	test.That(t, c.Reg8(1, snIR)&irSendOK, test.ShouldEqual, irSendOK)

	c.InjectFrame(0, []byte{1, 2, 3})
	test.That(t, c.Reg16(1, snRXRSR), test.ShouldEqual, 5)
	test.That(t, c.Reg16(1, snRXWR), test.ShouldEqual, 5)
	rx := xfer(t, c, 0x00, 0x00, 3<<3, 0, 0, 0, 0, 0)
	test.That(t, rx[3:], test.ShouldResemble, []byte{0x00, 0x05, 1, 2, 3})
}

func TestSoftReset(t *testing.T) {
	c := NewChip()
	c.SetReg16(1, snTXWR, 0x1234)
	xfer(t, c, 0x00, 0x00, 0x04, 0x80)
	test.That(t, c.Reg16(1, snTXWR), test.ShouldEqual, 0)
	test.That(t, c.Reg8(0, regMode), test.ShouldEqual, 0)
	test.That(t, c.Reg8(0, regVersion), test.ShouldEqual, 0x04)
	test.That(t, c.Reg8(0, regPHYCFGR), test.ShouldEqual, 0x07)
}

func TestFailNext(t *testing.T) {
	c := NewChip()
	c.FailNext(context.DeadlineExceeded)
	hnd, err := c.OpenHandle()
	test.That(t, err, test.ShouldBeNil)
	_, err = hnd.Xfer(context.Background(), 1000, "0", 0, []byte{0, 0x39, 0, 0})
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)
	_, err = hnd.Xfer(context.Background(), 1000, "0", 0, []byte{0, 0x39, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hnd.Close(), test.ShouldBeNil)
	test.That(t, len(c.Transactions()), test.ShouldEqual, 1)
}
