// Package fake is an in-memory mode-setting backend for headless runs and
// tests. It records every programming call in order and can be scripted to
// fail specific calls.
package fake

import (
	"fmt"

	"github.com/coreman2200/funtimes-kmslab/internal/kms"
)

// Call is one recorded backend invocation.
type Call struct {
	Op    string // "set_crtc" | "set_plane" | "set_cursor" | "set_property"
	CRTC  kms.CRTCRequest
	Plane kms.PlaneRequest

	CursorCRTC uint32
	CursorFB   uint32
	CursorX    int32
	CursorY    int32

	PropObject uint32
	PropID     uint32
	PropValue  uint64
}

// Prop is a property exposed on an object.
type Prop struct {
	ID    uint32
	Value uint64
}

// Backend implements kms.Backend against scripted topology data.
type Backend struct {
	Res   kms.Resources
	Props map[uint32]map[string]Prop // object id -> property name -> prop

	// Calls holds every programming call issued, in order. Discovery and
	// property reads are not programming calls and are not recorded.
	Calls []Call

	// FailOn, when set, is consulted before each programming call; a
	// non-nil return fails that call. The call is still recorded.
	FailOn func(c Call) error

	// DiscoverErr fails Discover when set.
	DiscoverErr error

	Closed bool
}

var _ kms.Backend = (*Backend)(nil)

// ModeInfo builds a plain mode with the given geometry.
func ModeInfo(name string, w, h uint16, refresh uint32, preferred bool) kms.Mode {
	return kms.Mode{
		Name:      name,
		Clock:     uint32(w) * uint32(h) * refresh / 1000,
		HDisplay:  w,
		HSyncStart: w + 16, HSyncEnd: w + 32, HTotal: w + 80,
		VDisplay:  h,
		VSyncStart: h + 3, VSyncEnd: h + 8, VTotal: h + 30,
		VRefresh:  refresh,
		Preferred: preferred,
	}
}

// NewUniversal builds a backend with three pipes, one connected and one
// disconnected output, and three typed planes per pipe (primary, overlay
// with rotation support, cursor). Background color is exposed on every
// CRTC.
func NewUniversal() *Backend {
	b := &Backend{
		Res: kms.Resources{
			CRTCs: []uint32{100, 101, 102},
			Connectors: []kms.ConnectorInfo{
				{
					ID:        200,
					Name:      "HDMI-A-1",
					Connected: true,
					Modes: []kms.Mode{
						ModeInfo("1920x1080", 1920, 1080, 60, true),
						ModeInfo("1024x768", 1024, 768, 60, false),
					},
					Encoders: []uint32{300},
				},
				{
					ID:       201,
					Name:     "VGA-1",
					Encoders: []uint32{301},
				},
			},
			Encoders: []kms.EncoderInfo{
				{ID: 300, PossibleCRTCs: 0x7},
				{ID: 301, PossibleCRTCs: 0x7},
			},
		},
		Props: map[uint32]map[string]Prop{},
	}
	planeID := uint32(400)
	for idx, crtcID := range b.Res.CRTCs {
		b.Props[crtcID] = map[string]Prop{
			"background_color": {ID: 50 + uint32(idx)},
		}
		bit := uint32(1) << uint(idx)
		for _, typ := range []uint64{kms.PlaneTypePrimary, kms.PlaneTypeOverlay, kms.PlaneTypeCursor} {
			b.Res.Planes = append(b.Res.Planes, kms.PlaneInfo{ID: planeID, PossibleCRTCs: bit})
			props := map[string]Prop{"type": {ID: 1, Value: typ}}
			if typ == kms.PlaneTypeOverlay {
				props["rotation"] = Prop{ID: 2, Value: uint64(kms.Rotate0)}
			}
			b.Props[planeID] = props
			planeID++
		}
	}
	return b
}

// NewLegacy builds a backend reporting no plane resources, so the display
// falls back to the synthesized primary+cursor model.
func NewLegacy() *Backend {
	b := NewUniversal()
	b.Res.Planes = nil
	return b
}

// AddOutput appends a connected connector routed through a fresh encoder
// reaching every pipe, and returns its connector id.
func (b *Backend) AddOutput(name string, modes ...kms.Mode) uint32 {
	connID := uint32(210 + len(b.Res.Connectors))
	encID := uint32(310 + len(b.Res.Encoders))
	if len(modes) == 0 {
		modes = []kms.Mode{ModeInfo("1920x1080", 1920, 1080, 60, true)}
	}
	b.Res.Connectors = append(b.Res.Connectors, kms.ConnectorInfo{
		ID: connID, Name: name, Connected: true, Modes: modes, Encoders: []uint32{encID},
	})
	b.Res.Encoders = append(b.Res.Encoders, kms.EncoderInfo{ID: encID, PossibleCRTCs: 0x7})
	return connID
}

// CallOps returns just the op names of the recorded calls.
func (b *Backend) CallOps() []string {
	ops := make([]string, len(b.Calls))
	for i, c := range b.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset drops the recorded calls.
func (b *Backend) Reset() { b.Calls = nil }

func (b *Backend) record(c Call) error {
	b.Calls = append(b.Calls, c)
	if b.FailOn != nil {
		return b.FailOn(c)
	}
	return nil
}

func (b *Backend) Discover() (*kms.Resources, error) {
	if b.DiscoverErr != nil {
		return nil, b.DiscoverErr
	}
	res := b.Res
	return &res, nil
}

func (b *Backend) SetCRTC(req kms.CRTCRequest) error {
	return b.record(Call{Op: "set_crtc", CRTC: req})
}

func (b *Backend) SetPlane(req kms.PlaneRequest) error {
	return b.record(Call{Op: "set_plane", Plane: req})
}

func (b *Backend) SetCursor(crtc uint32, fb uint32, x, y int32) error {
	return b.record(Call{Op: "set_cursor", CursorCRTC: crtc, CursorFB: fb, CursorX: x, CursorY: y})
}

func (b *Backend) GetProperty(objectID, objectType uint32, name string) (uint32, uint64, bool, error) {
	props, ok := b.Props[objectID]
	if !ok {
		return 0, 0, false, nil
	}
	p, ok := props[name]
	if !ok {
		return 0, 0, false, nil
	}
	return p.ID, p.Value, true, nil
}

func (b *Backend) SetProperty(objectID, objectType uint32, propID uint32, value uint64) error {
	return b.record(Call{Op: "set_property", PropObject: objectID, PropID: propID, PropValue: value})
}

func (b *Backend) Close() error {
	if b.Closed {
		return fmt.Errorf("fake backend: already closed")
	}
	b.Closed = true
	return nil
}
