package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/viam-modules/w5500/pins"
	"github.com/viam-modules/w5500/testutils/inject"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"w5500ctl"}, args...))
	return out.String(), err
}

func TestStatusFake(t *testing.T) {
	out, err := runApp(t, "--fake", "status")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "VERSIONR")
	test.That(t, out, test.ShouldContainSubstring, "0x04")
	test.That(t, out, test.ShouldContainSubstring, "Full 100Mbps based")
}

func TestSendFake(t *testing.T) {
	out, err := runApp(t, "--fake", "send", "--text", "Hello world!")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "> ff:ff:ff:ff:ff:ff type 0x88b5, 26 bytes")
	test.That(t, out, test.ShouldContainSubstring, "1 sent frame(s)")

	out, err = runApp(t, "--fake", "send", "--hex", "ffffffffffff48656c6c6f20776f726c6421")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "18 bytes")
}

func TestFramePayload(t *testing.T) {
	_, err := framePayload("", "", "")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = framePayload("00", "x", "")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = framePayload("0g", "", "")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = framePayload("", "x", "bogus")
	test.That(t, err, test.ShouldNotBeNil)

	frame, err := framePayload("a0b1", "", "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame, test.ShouldResemble, []byte{0xa0, 0xb1})

	frame, err = framePayload("", "x", "02:00:00:00:00:aa")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(frame), test.ShouldEqual, 15)
	test.That(t, frame[6:12], test.ShouldResemble, []byte{0x02, 0, 0, 0, 0, 0xaa})
}

func TestOpenDeviceReleasesPinsOnFailure(t *testing.T) {
	origOutput, origInterrupt := openOutputPin, openInterruptLine
	t.Cleanup(func() {
		openOutputPin, openInterruptLine = origOutput, origInterrupt
	})

	var opened, closed []int
	openOutputPin = func(devicePath string, offset int, initialHigh bool) (pins.OutputPin, error) {
		opened = append(opened, offset)
		return &inject.OutputPin{
			SetFunc: func(ctx context.Context, isHigh bool) error { return nil },
			CloseFunc: func() error {
				closed = append(closed, offset)
				return nil
			},
		}, nil
	}
	openInterruptLine = func(devicePath string, offset int) (pins.InterruptLine, error) {
		return nil, errors.New("line busy")
	}

	_, err := runApp(t, "--reset-pin", "5", "--cs-pin", "6", "--int-pin", "7", "status")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "opening interrupt pin")
	test.That(t, opened, test.ShouldResemble, []int{5, 6})
	test.That(t, closed, test.ShouldResemble, []int{6, 5})
}
