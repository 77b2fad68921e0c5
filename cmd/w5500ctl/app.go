package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"github.com/viam-modules/w5500/buses"
	"github.com/viam-modules/w5500/components/ethernet"
	"github.com/viam-modules/w5500/pins"
	"github.com/viam-modules/w5500/w5500"
	"github.com/viam-modules/w5500/w5500/fake"
)

const (
	flagSPIBus     = "spi-bus"
	flagChipSelect = "chip-select"
	flagBaud       = "baud"
	flagGPIOChip   = "gpio-chip"
	flagResetPin   = "reset-pin"
	flagIntPin     = "int-pin"
	flagCSPin      = "cs-pin"
	flagFake       = "fake"
	flagDebug      = "debug"

	flagHex       = "hex"
	flagText      = "text"
	flagSourceMAC = "source-mac"
	flagCount     = "count"
)

// noPin marks an unset pin flag.
const noPin = -1

// Swapped out in tests.
var (
	openOutputPin     = pins.NewOutputPin
	openInterruptLine = pins.NewInterruptLine
)

func newApp() *cli.App {
	var logger logging.Logger

	return &cli.App{
		Name:  "w5500ctl",
		Usage: "inspect and exercise a W5500 ethernet controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagSPIBus,
				Value: "0",
				Usage: "spidev bus number",
			},
			&cli.StringFlag{
				Name:  flagChipSelect,
				Value: "0",
				Usage: "spidev chip select",
			},
			&cli.UintFlag{
				Name:  flagBaud,
				Value: w5500.DefaultBaud,
				Usage: "SPI clock in Hz",
			},
			&cli.StringFlag{
				Name:  flagGPIOChip,
				Value: pins.DefaultGPIOChip,
				Usage: "GPIO character device for the reset, interrupt and chip select lines",
			},
			&cli.IntFlag{
				Name:  flagResetPin,
				Value: noPin,
				Usage: "reset line offset; the software reset is used when unset",
			},
			&cli.IntFlag{
				Name:  flagIntPin,
				Value: noPin,
				Usage: "interrupt line offset; the chip is polled when unset",
			},
			&cli.IntFlag{
				Name:  flagCSPin,
				Value: noPin,
				Usage: "manual chip select line offset",
			},
			&cli.BoolFlag{
				Name:  flagFake,
				Usage: "talk to a simulated chip instead of hardware",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("w5500ctl")
			} else {
				logger = logging.NewLogger("w5500ctl")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "reset the chip and report its version and link",
				Action: func(c *cli.Context) error {
					return statusAction(c, logger)
				},
			},
			{
				Name:  "send",
				Usage: "open the raw socket and transmit one frame",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagHex,
						Usage: "whole frame as hex",
					},
					&cli.StringFlag{
						Name:  flagText,
						Usage: "payload of a broadcast frame",
					},
					&cli.StringFlag{
						Name:  flagSourceMAC,
						Usage: "source address of the broadcast frame",
					},
				},
				Action: func(c *cli.Context) error {
					return sendAction(c, logger)
				},
			},
			{
				Name:  "listen",
				Usage: "open the raw socket and print every received frame",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagCount,
						Usage: "stop after this many frames; 0 listens until interrupted",
					},
				},
				Action: func(c *cli.Context) error {
					return listenAction(c, logger)
				},
			},
		},
	}
}

func optionalPin(c *cli.Context, name string) (int, bool) {
	offset := c.Int(name)
	return offset, offset != noPin
}

// openDevice builds a Device from the global flags. With --fake it also returns the simulated chip.
func openDevice(c *cli.Context, logger logging.Logger) (*w5500.Device, *fake.Chip, error) {
	conf := w5500.Config{
		ChipSelect:   c.String(flagChipSelect),
		Baud:         c.Uint(flagBaud),
		PollInterval: 10 * time.Millisecond,
	}
	if c.Bool(flagFake) {
		chip := fake.NewChip()
		conf.Bus = chip
		conf.Interrupt = chip.Interrupt()
		dev, err := w5500.New(conf, logger)
		return dev, chip, err
	}

	conf.Bus = buses.NewSpiBus(c.String(flagSPIBus))
	gpioChip := c.String(flagGPIOChip)
	var err error
	if offset, ok := optionalPin(c, flagResetPin); ok {
		if conf.ResetPin, err = openOutputPin(gpioChip, offset, true); err != nil {
			return nil, nil, releaseHardware(c.Context, conf, errors.Wrap(err, "opening reset pin"))
		}
	}
	if offset, ok := optionalPin(c, flagCSPin); ok {
		if conf.ChipSelectPin, err = openOutputPin(gpioChip, offset, true); err != nil {
			return nil, nil, releaseHardware(c.Context, conf, errors.Wrap(err, "opening chip select pin"))
		}
	}
	if offset, ok := optionalPin(c, flagIntPin); ok {
		if conf.Interrupt, err = openInterruptLine(gpioChip, offset); err != nil {
			return nil, nil, releaseHardware(c.Context, conf, errors.Wrap(err, "opening interrupt pin"))
		}
	}
	dev, err := w5500.New(conf, logger)
	if err != nil {
		return nil, nil, releaseHardware(c.Context, conf, err)
	}
	return dev, nil, nil
}

// releaseHardware closes whatever openDevice managed to open before failing with err.
func releaseHardware(ctx context.Context, conf w5500.Config, err error) error {
	if conf.Interrupt != nil {
		err = multierr.Combine(err, conf.Interrupt.Close())
	}
	if conf.ChipSelectPin != nil {
		err = multierr.Combine(err, conf.ChipSelectPin.Close())
	}
	if conf.ResetPin != nil {
		err = multierr.Combine(err, conf.ResetPin.Close())
	}
	return multierr.Combine(err, conf.Bus.Close(ctx))
}

func statusAction(c *cli.Context, logger logging.Logger) error {
	dev, _, err := openDevice(c, logger)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(func() error { return dev.Close(context.Background()) })

	if err := dev.Init(c.Context); err != nil {
		return err
	}
	version, err := dev.Version(c.Context)
	if err != nil {
		return err
	}
	phy, err := dev.PHY(c.Context)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Register", "Value", "Meaning"})
	t.AppendRow(table.Row{"VERSIONR", fmt.Sprintf("0x%02x", version), "W5500"})
	t.AppendRow(table.Row{"PHYCFGR", fmt.Sprintf("0x%02x", uint8(phy)), phy.String()})
	link := color.RedString("down")
	if phy.Link() {
		link = color.GreenString("up")
	}
	t.AppendRow(table.Row{"Link", "", link})
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

func sendAction(c *cli.Context, logger logging.Logger) error {
	frame, err := framePayload(c.String(flagHex), c.String(flagText), c.String(flagSourceMAC))
	if err != nil {
		return err
	}
	dev, chip, err := openDevice(c, logger)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(func() error { return dev.Close(context.Background()) })

	if err := dev.ConfigureRawMode(c.Context, w5500.RawModeOptions{}); err != nil {
		return err
	}
	if err := dev.Transmit(c.Context, 0, frame); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "sent %s\n", ethernet.FrameSummary(frame))
	if chip != nil {
		fmt.Fprintf(c.App.Writer, "simulated chip holds %d sent frame(s)\n", len(chip.SentFrames()))
	}
	return nil
}

// framePayload returns the frame to send from exactly one of hexData or text.
func framePayload(hexData, text, sourceMAC string) ([]byte, error) {
	switch {
	case hexData != "" && text != "":
		return nil, errors.Errorf("only one of --%s and --%s may be set", flagHex, flagText)
	case hexData != "":
		frame, err := hex.DecodeString(hexData)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding --%s", flagHex)
		}
		return frame, nil
	case text != "":
		src, err := ethernet.ParseMAC(sourceMAC)
		if err != nil {
			return nil, err
		}
		return ethernet.BuildBroadcast(src, []byte(text))
	default:
		return nil, errors.Errorf("one of --%s or --%s is required", flagHex, flagText)
	}
}

func listenAction(c *cli.Context, logger logging.Logger) error {
	dev, _, err := openDevice(c, logger)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(func() error { return dev.Close(context.Background()) })

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	limit := c.Int(flagCount)
	var seen atomic.Int64
	dev.SetReceiveCallback(func(sn w5500.Socket, data []byte) {
		n := seen.Inc()
		fmt.Fprintf(c.App.Writer, "%d: socket %d %s\n", n, sn, ethernet.FrameSummary(data))
		if limit > 0 && n >= int64(limit) {
			cancel()
		}
	})
	if err := dev.ConfigureRawMode(ctx, w5500.RawModeOptions{}); err != nil {
		return err
	}
	logger.Info("listening for frames")
	<-ctx.Done()
	logger.Infof("received %d frame(s)", seen.Load())
	return nil
}
