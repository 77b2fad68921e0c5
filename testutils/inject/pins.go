package inject

import (
	"context"

	"github.com/viam-modules/w5500/pins"
)

// OutputPin is an injected output pin.
type OutputPin struct {
	pins.OutputPin
	SetFunc   func(ctx context.Context, isHigh bool) error
	CloseFunc func() error
}

// Set calls the injected Set or the real version.
func (p *OutputPin) Set(ctx context.Context, isHigh bool) error {
	if p.SetFunc == nil {
		return p.OutputPin.Set(ctx, isHigh)
	}
	return p.SetFunc(ctx, isHigh)
}

// Close calls the injected Close or the real version.
func (p *OutputPin) Close() error {
	if p.CloseFunc == nil {
		if p.OutputPin == nil {
			return nil
		}
		return p.OutputPin.Close()
	}
	return p.CloseFunc()
}
