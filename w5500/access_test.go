package w5500

import (
	"context"
	"testing"

	"go.viam.com/test"
)

func TestRegisterRoundTrip(t *testing.T) {
	dev, _ := newTestDevice(t, Config{})
	ctx := context.Background()
	reg := Socket(4).RegisterBlock()

	for v := 0; v <= 0xFFFF; v++ {
		test.That(t, dev.Write16(ctx, SnMSSR, reg, uint16(v)), test.ShouldBeNil)
		got, err := dev.Read16(ctx, SnMSSR, reg)
		test.That(t, err, test.ShouldBeNil)
		if got != uint16(v) {
			t.Fatalf("16-bit round trip: wrote 0x%04x, read 0x%04x", v, got)
		}
	}
	for v := 0; v <= 0xFF; v++ {
		test.That(t, dev.Write8(ctx, SnIMR, reg, uint8(v)), test.ShouldBeNil)
		got, err := dev.Read8(ctx, SnIMR, reg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, uint8(v))
	}
}
