//go:build linux

package pins

import (
	"context"
	"sync"

	"github.com/mkch/gpio"
	"go.viam.com/utils"
)

type interruptLine struct {
	line       *gpio.LineWithEvent
	edges      chan struct{}
	cancelFunc func()
	workers    sync.WaitGroup
}

// NewInterruptLine requests the given offset as a falling-edge event input. The W5500 drives its
// INTn pin low while any unmasked interrupt flag is latched, so only falling edges matter.
func NewInterruptLine(devicePath string, offset int) (InterruptLine, error) {
	if devicePath == "" {
		devicePath = DefaultGPIOChip
	}
	chip, err := gpio.OpenChip(devicePath)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	line, err := chip.OpenLineWithEvents(uint32(offset), gpio.Input, gpio.FallingEdge, "w5500-int")
	if err != nil {
		return nil, err
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	il := &interruptLine{
		line:       line,
		edges:      make(chan struct{}, 1),
		cancelFunc: cancelFunc,
	}
	il.startMonitor(cancelCtx)
	return il, nil
}

func (il *interruptLine) startMonitor(ctx context.Context) {
	il.workers.Add(1)
	utils.ManagedGo(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-il.line.Events():
				if !ok {
					return
				}
				if event.RisingEdge {
					continue
				}
				select {
				case il.edges <- struct{}{}:
				default:
				}
			}
		}
	}, il.workers.Done)
}

func (il *interruptLine) Edges() <-chan struct{} {
	return il.edges
}

func (il *interruptLine) Close() error {
	// The monitor only reads from the event channel, so it may finish after the line is closed.
	il.cancelFunc()
	return il.line.Close()
}
