package kms

import "github.com/rs/zerolog/log"

// PipeNone unbinds an output from any pipe.
const PipeNone = -1

// Config is a resolved connector configuration: the encoder/CRTC path
// found for a connector at bind time, plus its default mode.
type Config struct {
	Connector   ConnectorInfo
	Encoder     EncoderInfo
	CRTC        uint32
	CRTCIndex   int
	DefaultMode Mode
}

// Output is one discovered connector endpoint. Invalid outputs (no usable
// encoder/CRTC path, or nothing connected) are retained for enumeration
// but can never be bound to a pipe.
type Output struct {
	display *Display
	id      uint32 // stable connector id
	name    string
	valid   bool
	config  Config

	pendingPipeMask uint64
	overrideMode    *Mode
}

func (o *Output) ID() uint32   { return o.id }
func (o *Output) Name() string { return o.name }

// Valid reports whether configuration resolution succeeded for this
// output. Invalid outputs are skipped by ConnectedOutputs.
func (o *Output) Valid() bool { return o.valid }

// Config returns the resolved configuration. Only meaningful when Valid.
func (o *Output) Config() Config { return o.config }

// Mode returns the mode a commit would program: the override mode when one
// is set, the resolved default mode otherwise.
func (o *Output) Mode() Mode {
	if o.overrideMode != nil {
		return *o.overrideMode
	}
	return o.config.DefaultMode
}

// OverrideMode replaces the effective mode without checking it against the
// connector's mode list. Deliberately unchecked: tests use this to drive
// out-of-EDID timings.
func (o *Output) OverrideMode(mode Mode) {
	m := mode
	o.overrideMode = &m
	if p := o.boundPipe(); p != nil {
		p.modeChanged = true
	}
}

// CurrentPipe returns the pipe index this output requests, PipeNone when
// unbound.
func (o *Output) CurrentPipe() int {
	for i := 0; i < o.display.PipeCount(); i++ {
		if o.pendingPipeMask&(1<<uint(i)) != 0 {
			return i
		}
	}
	return PipeNone
}

func (o *Output) boundPipe() *Pipe {
	if i := o.CurrentPipe(); i != PipeNone {
		return o.display.pipes[i]
	}
	return nil
}

// SetPipe stages a pipe assignment for this output. Binding a pipe that
// another output holds silently moves it here: last writer wins. PipeNone
// unbinds. Invalid outputs are never assigned.
func (o *Output) SetPipe(pipe int) {
	if !o.valid {
		log.Warn().Str("output", o.name).Msg("ignoring pipe assignment on invalid output")
		return
	}
	if pipe == PipeNone {
		o.pendingPipeMask = 0
	} else {
		bit := uint64(1) << uint(pipe)
		for _, other := range o.display.outputs {
			if other != o && other.pendingPipeMask&bit != 0 {
				other.pendingPipeMask = 0
			}
		}
		o.pendingPipeMask = bit
	}
	o.display.refreshRouting()
}

// resolveConfig searches for an encoder compatible with the connector and
// a CRTC compatible with that encoder, constrained to allowedPipeMask.
// Returns ok=false — not an error — when no path exists; the output is
// simply unusable.
func resolveConfig(conn ConnectorInfo, encoders []EncoderInfo, crtcs []uint32, allowedPipeMask uint32) (Config, bool) {
	if !conn.Connected || len(conn.Modes) == 0 {
		return Config{}, false
	}
	for _, encID := range conn.Encoders {
		enc, ok := findEncoder(encoders, encID)
		if !ok {
			continue
		}
		for idx := range crtcs {
			if allowedPipeMask&(1<<uint(idx)) == 0 {
				continue
			}
			if enc.PossibleCRTCs&(1<<uint(idx)) == 0 {
				continue
			}
			return Config{
				Connector:   conn,
				Encoder:     enc,
				CRTC:        crtcs[idx],
				CRTCIndex:   idx,
				DefaultMode: defaultMode(conn.Modes),
			}, true
		}
	}
	return Config{}, false
}

func findEncoder(encoders []EncoderInfo, id uint32) (EncoderInfo, bool) {
	for _, e := range encoders {
		if e.ID == id {
			return e, true
		}
	}
	return EncoderInfo{}, false
}

// defaultMode picks the connector's preferred mode, falling back to the
// first reported one.
func defaultMode(modes []Mode) Mode {
	for _, m := range modes {
		if m.Preferred {
			return m
		}
	}
	return modes[0]
}
