// Package ethernet exposes a W5500 running a MACRAW socket as a generic component. Received frames
// are kept in a bounded backlog; everything else is reached through DoCommand.
package ethernet

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	goutils "go.viam.com/utils"

	"github.com/viam-modules/w5500/buses"
	"github.com/viam-modules/w5500/pins"
	"github.com/viam-modules/w5500/w5500"
	"github.com/viam-modules/w5500/w5500/fake"
)

var (
	// Model drives a W5500 wired to a Linux SPI bus.
	Model = resource.NewModel("viam-modules", "ethernet", "w5500")
	// FakeModel drives a simulated chip.
	FakeModel = resource.NewModel("viam-modules", "ethernet", "fake-w5500")
)

// rawSocket is the socket ConfigureRawMode opens.
const rawSocket w5500.Socket = 0

func init() {
	resource.RegisterComponent(
		generic.API,
		Model,
		resource.Registration[resource.Resource, *Config]{Constructor: newW5500},
	)
	resource.RegisterComponent(
		generic.API,
		FakeModel,
		resource.Registration[resource.Resource, *FakeConfig]{Constructor: newFakeW5500},
	)
}

type settings struct {
	backlog   int
	sourceMAC [6]byte
	raw       w5500.RawModeOptions
}

type w5500Ethernet struct {
	resource.Named
	resource.AlwaysRebuild

	logger    logging.Logger
	dev       *w5500.Device
	frames    *frameBacklog
	sourceMAC [6]byte

	// chip is only set for the fake model.
	chip *fake.Chip
}

func newW5500(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (resource.Resource, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}
	sourceMAC, err := ParseMAC(newConf.SourceMAC)
	if err != nil {
		return nil, err
	}
	devConf, err := openHardware(ctx, newConf)
	if err != nil {
		return nil, err
	}
	e, err := newEthernet(ctx, conf.ResourceName(), devConf, settings{
		backlog:   backlogOrDefault(newConf.FrameBacklog),
		sourceMAC: sourceMAC,
		raw:       newConf.rawModeOptions(),
	}, logger)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// openHardware opens the bus and every configured line. On failure whatever was already opened
// is released.
func openHardware(ctx context.Context, conf *Config) (w5500.Config, error) {
	devConf := w5500.Config{
		Bus:        buses.NewSpiBus(conf.SPIBus),
		ChipSelect: conf.ChipSelect,
		Baud:       uint(conf.SPIBaudRate),
		Commands:   conf.pollPolicy(),
	}
	var err error
	if conf.ResetPin != nil {
		devConf.ResetPin, err = pins.NewOutputPin(conf.gpioChip(), *conf.ResetPin, true)
		if err != nil {
			return devConf, closeHardware(ctx, devConf, errors.Wrap(err, "opening reset pin"))
		}
	}
	if conf.ChipSelectPin != nil {
		devConf.ChipSelectPin, err = pins.NewOutputPin(conf.gpioChip(), *conf.ChipSelectPin, true)
		if err != nil {
			return devConf, closeHardware(ctx, devConf, errors.Wrap(err, "opening chip select pin"))
		}
	}
	if conf.InterruptPin != nil {
		devConf.Interrupt, err = pins.NewInterruptLine(conf.gpioChip(), *conf.InterruptPin)
		if err != nil {
			return devConf, closeHardware(ctx, devConf, errors.Wrap(err, "opening interrupt pin"))
		}
	} else {
		devConf.PollInterval = conf.pollInterval()
	}
	return devConf, nil
}

func closeHardware(ctx context.Context, devConf w5500.Config, err error) error {
	if devConf.Interrupt != nil {
		err = multierr.Combine(err, devConf.Interrupt.Close())
	}
	if devConf.ResetPin != nil {
		err = multierr.Combine(err, devConf.ResetPin.Close())
	}
	if devConf.ChipSelectPin != nil {
		err = multierr.Combine(err, devConf.ChipSelectPin.Close())
	}
	if devConf.Bus == nil {
		return err
	}
	return multierr.Combine(err, devConf.Bus.Close(ctx))
}

// FakeConfig configures the simulated model.
type FakeConfig struct {
	FrameBacklog int    `json:"frame_backlog,omitempty"`
	SourceMAC    string `json:"source_mac,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *FakeConfig) Validate(path string) ([]string, []string, error) {
	if conf.FrameBacklog < 0 {
		return nil, nil, goutils.NewConfigValidationError(path, errors.New("frame_backlog must not be negative"))
	}
	if _, err := ParseMAC(conf.SourceMAC); err != nil {
		return nil, nil, goutils.NewConfigValidationError(path, err)
	}
	return nil, nil, nil
}

func newFakeW5500(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (resource.Resource, error) {
	newConf, err := resource.NativeConfig[*FakeConfig](conf)
	if err != nil {
		return nil, err
	}
	sourceMAC, err := ParseMAC(newConf.SourceMAC)
	if err != nil {
		return nil, err
	}
	chip := fake.NewChip()
	e, err := newEthernet(ctx, conf.ResourceName(), w5500.Config{
		Bus:        chip,
		ChipSelect: "0",
		Interrupt:  chip.Interrupt(),
	}, settings{
		backlog:   backlogOrDefault(newConf.FrameBacklog),
		sourceMAC: sourceMAC,
	}, logger)
	if err != nil {
		return nil, err
	}
	e.chip = chip
	return e, nil
}

func newEthernet(
	ctx context.Context,
	name resource.Name,
	devConf w5500.Config,
	opts settings,
	logger logging.Logger,
) (*w5500Ethernet, error) {
	dev, err := w5500.New(devConf, logger)
	if err != nil {
		return nil, closeHardware(ctx, devConf, err)
	}
	e := &w5500Ethernet{
		Named:     name.AsNamed(),
		logger:    logger,
		dev:       dev,
		frames:    newFrameBacklog(opts.backlog, logger),
		sourceMAC: opts.sourceMAC,
	}
	dev.SetReceiveCallback(e.frames.push)
	if err := dev.ConfigureRawMode(ctx, opts.raw); err != nil {
		return nil, multierr.Combine(err, dev.Close(ctx))
	}
	return e, nil
}

// DoCommand runs one of the chip verbs named by cmd["command"].
func (e *w5500Ethernet) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd["command"]
	if !ok {
		return nil, errors.New("missing 'command' value")
	}
	switch name {
	case "status":
		return e.status(ctx)
	case "version":
		version, err := e.dev.Version(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"version": int(version)}, nil
	case "link":
		link, err := e.dev.LinkUp(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"link": link}, nil
	case "speed":
		speed, err := e.dev.Speed(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"speed": speed}, nil
	case "transmit":
		data, err := hexArg(cmd, "data")
		if err != nil {
			return nil, err
		}
		return e.transmit(ctx, data)
	case "broadcast":
		text, err := stringArg(cmd, "text")
		if err != nil {
			return nil, err
		}
		frame, err := BuildBroadcast(e.sourceMAC, []byte(text))
		if err != nil {
			return nil, err
		}
		return e.transmit(ctx, frame)
	case "frames":
		frames := lo.Map(e.frames.drain(), func(f receivedFrame, _ int) interface{} {
			return f.describe()
		})
		return map[string]interface{}{"frames": frames}, nil
	case "dispatch":
		if err := e.dev.Dispatch(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{}, nil
	case "inject":
		if e.chip == nil {
			return nil, errors.New("inject is only supported by the fake model")
		}
		data, err := hexArg(cmd, "data")
		if err != nil {
			return nil, err
		}
		e.chip.InjectFrame(int(rawSocket), data)
		return map[string]interface{}{"injected": len(data)}, nil
	default:
		return nil, fmt.Errorf("no such command: %s", name)
	}
}

func (e *w5500Ethernet) status(ctx context.Context) (map[string]interface{}, error) {
	version, err := e.dev.Version(ctx)
	if err != nil {
		return nil, err
	}
	phy, err := e.dev.PHY(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"version":  int(version),
		"link":     phy.Link(),
		"speed":    phy.String(),
		"received": int(e.frames.received.Load()),
		"dropped":  int(e.frames.dropped.Load()),
		"buffered": e.frames.len(),
	}, nil
}

func (e *w5500Ethernet) transmit(ctx context.Context, frame []byte) (map[string]interface{}, error) {
	if err := e.dev.Transmit(ctx, rawSocket, frame); err != nil {
		return nil, err
	}
	e.logger.CDebugw(ctx, "frame transmitted", "length", len(frame))
	return map[string]interface{}{"sent": len(frame)}, nil
}

// Close stops dispatching and releases the bus and pins.
func (e *w5500Ethernet) Close(ctx context.Context) error {
	return e.dev.Close(ctx)
}

func stringArg(cmd map[string]interface{}, key string) (string, error) {
	raw, ok := cmd[key]
	if !ok {
		return "", errors.Errorf("missing '%s' value", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", errors.Errorf("'%s' must be a string, got %T", key, raw)
	}
	return s, nil
}

func hexArg(cmd map[string]interface{}, key string) ([]byte, error) {
	s, err := stringArg(cmd, key)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding '%s'", key)
	}
	return data, nil
}
