package kms

import "fmt"

// Pipe is the staged state of one CRTC. Its enabled flag is derived from
// output bindings and never set directly: a pipe is enabled iff at least
// one valid output currently requests it.
type Pipe struct {
	display *Display
	index   int
	crtcID  uint32

	enabled bool
	owner   *Output // the output routed to this pipe, nil when disabled

	planes []*Plane

	background        uint64
	backgroundProp    uint32 // 0 when the hardware has no background property
	backgroundChanged bool

	// routing (enabled state, bound output or its mode) changed since the
	// last successful commit
	modeChanged bool
}

func (p *Pipe) Index() int   { return p.index }
func (p *Pipe) Name() string { return PipeName(p.index) }
func (p *Pipe) CRTC() uint32 { return p.crtcID }

// Enabled reports whether a valid output currently requests this pipe.
func (p *Pipe) Enabled() bool { return p.enabled }

// Output returns the output bound to this pipe, nil when none.
func (p *Pipe) Output() *Output { return p.owner }

func (p *Pipe) PlaneCount() int { return len(p.planes) }

func (p *Pipe) Plane(i int) *Plane {
	if i < 0 || i >= len(p.planes) {
		return nil
	}
	return p.planes[i]
}

// Primary returns the primary plane, nil if discovery found none.
func (p *Pipe) Primary() *Plane {
	for _, pl := range p.planes {
		if pl.role == PlaneRolePrimary {
			return pl
		}
	}
	return nil
}

// Cursor returns the cursor plane, nil if discovery found none.
func (p *Pipe) Cursor() *Plane {
	for _, pl := range p.planes {
		if pl.role == PlaneRoleCursor {
			return pl
		}
	}
	return nil
}

// Background returns the staged background color (MSB BGR 16bpc LSB).
func (p *Pipe) Background() uint64 { return p.background }

// SupportsBackground reports whether the background color property was
// found at discovery time.
func (p *Pipe) SupportsBackground() bool { return p.backgroundProp != 0 }

func (p *Pipe) object() ObjectID {
	return ObjectID{Pipe: p.index, Plane: -1}
}

// SetBackground stages a background color on the pipe. Fails with
// ErrUnsupported when the hardware exposes no background property.
func (p *Pipe) SetBackground(color uint64) error {
	if p.backgroundProp == 0 {
		return fmt.Errorf("background on %s: %w", p.object(), ErrUnsupported)
	}
	p.background = color
	p.backgroundChanged = true
	return nil
}
