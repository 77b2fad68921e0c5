package fake

import (
	"sync"

	"github.com/viam-modules/w5500/pins"
)

// InterruptLine is a simulated INTn line. Pulses coalesce while one is pending, like the edge
// notifications of a real GPIO line.
type InterruptLine struct {
	edges chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ pins.InterruptLine = (*InterruptLine)(nil)

func newInterruptLine() *InterruptLine {
	return &InterruptLine{edges: make(chan struct{}, 1)}
}

// NewInterruptLine returns a line that is only pulsed by Trigger.
func NewInterruptLine() *InterruptLine {
	return newInterruptLine()
}

// Trigger delivers a falling edge.
func (l *InterruptLine) Trigger() {
	l.pulse()
}

func (l *InterruptLine) pulse() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.edges <- struct{}{}:
	default:
	}
}

// Edges implements pins.InterruptLine.
func (l *InterruptLine) Edges() <-chan struct{} {
	return l.edges
}

// Close stops further edges. The chip's line can be closed and is then silent for good.
func (l *InterruptLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
