// Package w5500 drives a WIZnet W5500 hardwired TCP/IP controller over SPI. It frames register
// transactions, keeps each socket's transmit and receive ring pointers in step with the chip, and
// demultiplexes the chip's interrupt line into per-socket events.
package w5500

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"github.com/viam-modules/w5500/buses"
	"github.com/viam-modules/w5500/pins"
)

// defaultRetryInterval spaces dispatch retries when no poll interval is configured.
const defaultRetryInterval = 10 * time.Millisecond

// Config describes how a Device reaches its chip. The Device takes ownership of the bus and of
// every pin set here and releases them on Close.
type Config struct {
	Bus        buses.SPI
	ChipSelect string
	// Baud defaults to DefaultBaud.
	Baud uint

	// ChipSelectPin, when set, is driven low for the duration of every transaction in addition
	// to whatever chip select the bus itself asserts.
	ChipSelectPin pins.OutputPin
	// ResetPin, when unset, makes Reset fall back to the software reset bit.
	ResetPin pins.OutputPin
	// Interrupt is the chip's INTn line. Without it Start polls every PollInterval.
	Interrupt    pins.InterruptLine
	PollInterval time.Duration

	// Commands bounds how long socket commands may stay unacknowledged. The zero value waits
	// forever.
	Commands PollPolicy
	Clock    clock.Clock
}

// A ReceiveFunc is handed every frame pulled off a socket's receive ring.
type ReceiveFunc func(sn Socket, data []byte)

// An EventFunc observes every socket interrupt event in dispatch order.
type EventFunc func(sn Socket, ev Event)

// Device is the single owner of one chip's bus, chip select and reset line.
type Device struct {
	tr           *transport
	resetPin     pins.OutputPin
	interrupt    pins.InterruptLine
	pollInterval time.Duration
	policy       PollPolicy
	clock        clock.Clock
	logger       logging.Logger

	// opMu serializes composite socket operations (pointer read, buffer transfer, pointer
	// update, command) between Transmit and the dispatcher.
	opMu sync.Mutex
	// dispatchMu keeps Dispatch from running concurrently with itself.
	dispatchMu sync.Mutex

	callback atomic.Pointer[ReceiveFunc]
	events   atomic.Pointer[EventFunc]

	mu                      sync.Mutex
	started                 bool
	closed                  atomic.Bool
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// New returns a Device for the chip behind conf.Bus. It does not touch the bus; call Init or
// ConfigureRawMode next.
func New(conf Config, logger logging.Logger) (*Device, error) {
	if conf.Bus == nil {
		return nil, errors.New("w5500: no SPI bus configured")
	}
	baud := conf.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Device{
		tr: &transport{
			bus:        conf.Bus,
			chipSelect: conf.ChipSelect,
			baud:       baud,
			csPin:      conf.ChipSelectPin,
		},
		resetPin:     conf.ResetPin,
		interrupt:    conf.Interrupt,
		pollInterval: conf.PollInterval,
		policy:       conf.Commands,
		clock:        clk,
		logger:       logger,
	}, nil
}

// SetReceiveCallback installs fn as the receive callback, replacing any previous one. A nil fn
// makes the dispatcher discard received data.
func (d *Device) SetReceiveCallback(fn ReceiveFunc) {
	if fn == nil {
		d.callback.Store(nil)
		return
	}
	d.callback.Store(&fn)
}

// SetEventHandler installs fn as the socket event observer, replacing any previous one.
func (d *Device) SetEventHandler(fn EventFunc) {
	if fn == nil {
		d.events.Store(nil)
		return
	}
	d.events.Store(&fn)
}

// Start begins dispatching interrupts in the background: on every falling edge of the interrupt
// line, or every PollInterval when there is no line. It is a no-op when neither is configured or
// when already started.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return ErrClosed
	}
	if d.started {
		return nil
	}
	if d.interrupt == nil && d.pollInterval <= 0 {
		d.logger.Debug("no interrupt line or poll interval configured; dispatch is manual")
		return nil
	}
	d.started = true

	var cancelCtx context.Context
	cancelCtx, d.cancelFunc = context.WithCancel(context.Background())
	d.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		d.monitor(cancelCtx)
	}, d.activeBackgroundWorkers.Done)
	return nil
}

func (d *Device) monitor(ctx context.Context) {
	var edges <-chan struct{}
	var ticks <-chan time.Time
	if d.interrupt != nil {
		edges = d.interrupt.Edges()
	} else {
		ticker := d.clock.Ticker(d.pollInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	// The line may already be held low from before we were listening, in which case no new
	// edge will arrive until the pending flags are cleared.
	d.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-edges:
		case <-ticks:
		}
		d.drain(ctx)
	}
}

// drain dispatches until no socket interrupt is latched. INTn stays asserted while any flag is
// set, so returning with work pending would mean no further edge ever arrives. Further passes are
// spaced by the poll interval.
func (d *Device) drain(ctx context.Context) {
	for {
		err := d.Dispatch(ctx)
		if err == nil {
			var more bool
			if more, err = d.pending(ctx); err == nil && !more {
				return
			}
		}
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return
		}
		if err != nil {
			d.logger.Warnw("interrupt dispatch failed", "error", err)
		}
		if d.sleep(ctx, d.retryInterval()) != nil {
			return
		}
	}
}

func (d *Device) retryInterval() time.Duration {
	if d.pollInterval > 0 {
		return d.pollInterval
	}
	return defaultRetryInterval
}

// Close stops background dispatching and releases the bus and pins.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.mu.Unlock()
		return nil
	}
	if d.cancelFunc != nil {
		d.cancelFunc()
	}
	d.mu.Unlock()
	d.activeBackgroundWorkers.Wait()

	var err error
	if d.interrupt != nil {
		err = multierr.Combine(err, d.interrupt.Close())
	}
	if d.resetPin != nil {
		err = multierr.Combine(err, d.resetPin.Close())
	}
	if d.tr.csPin != nil {
		err = multierr.Combine(err, d.tr.csPin.Close())
	}
	return multierr.Combine(err, d.tr.bus.Close(ctx))
}

// sleep waits for dur on the device clock or until ctx is done.
func (d *Device) sleep(ctx context.Context, dur time.Duration) error {
	timer := d.clock.Timer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
