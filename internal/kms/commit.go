package kms

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// CommitStyle selects which hardware programming API a commit exercises.
type CommitStyle int

const (
	// CommitLegacy programs through the per-object legacy calls: CRTC
	// mode-sets carry the primary plane, cursors use the cursor call.
	CommitLegacy CommitStyle = iota
	// CommitUniversal programs every plane through the uniform plane-set
	// call. Requires universal plane support.
	CommitUniversal
	// CommitAtomic is reserved for the one-shot atomic API.
	CommitAtomic
)

func (s CommitStyle) String() string {
	switch s {
	case CommitLegacy:
		return "legacy"
	case CommitUniversal:
		return "universal"
	case CommitAtomic:
		return "atomic"
	}
	return "unknown"
}

// styleCaps lists the plane roles each commit style can program directly.
// Adding a style means adding a row here, not new conditionals in the walk.
var styleCaps = map[CommitStyle]map[PlaneRole]bool{
	CommitLegacy: {
		PlaneRolePrimary: true,
		PlaneRoleCursor:  true,
	},
	CommitUniversal: {
		PlaneRolePrimary: true,
		PlaneRoleOverlay: true,
		PlaneRoleCursor:  true,
	},
}

// Commit pushes all staged changes to hardware using the given style.
// Failures are logged and returned; use Commit when any failure should be
// fatal to the running test.
func (d *Display) Commit(style CommitStyle) error {
	if err := d.commit(style); err != nil {
		log.Error().Err(err).Stringer("style", style).Msg("commit failed")
		return err
	}
	return nil
}

// TryCommit is Commit for changes that are expected to fail: the result is
// an ordinary outcome for the caller to assert against, and nothing is
// logged. Calls already issued before the failure stay programmed.
func (d *Display) TryCommit(style CommitStyle) error {
	return d.commit(style)
}

// commit walks pipes in index order, and within each enabled pipe its
// planes in index order, issuing only the programming calls the dirty
// state requires. It stops at the first failing call; dirty bits are
// cleared per object, only after that object succeeded.
func (d *Display) commit(style CommitStyle) error {
	if d.closed {
		return errors.New("kms: display closed")
	}
	switch style {
	case CommitLegacy:
	case CommitUniversal:
		if !d.hasUniversalPlanes {
			return fmt.Errorf("universal commit: %w", ErrUnsupported)
		}
	case CommitAtomic:
		return fmt.Errorf("atomic commit: %w", ErrUnsupported)
	default:
		return fmt.Errorf("kms: unknown commit style %d", style)
	}

	for _, pipe := range d.pipes {
		if err := d.commitPipe(pipe, style); err != nil {
			return err
		}
	}
	return nil
}

func (d *Display) commitPipe(p *Pipe, style CommitStyle) error {
	primary := p.Primary()

	needModeset := p.modeChanged
	if style == CommitLegacy && p.enabled && primary != nil && legacyFold(primary.dirty) {
		// legacy hardware has no independent primary-plane call; fb,
		// position, size and panning ride on the CRTC mode-set
		needModeset = true
	}
	if needModeset {
		if err := d.programCRTC(p); err != nil {
			return err
		}
		p.modeChanged = false
		if style == CommitLegacy && p.enabled && primary != nil {
			primary.dirty.FB = false
			primary.dirty.Position = false
			primary.dirty.Size = false
			primary.dirty.Panning = false
		}
	}

	if p.backgroundChanged {
		log.Debug().Str("pipe", p.Name()).Uint64("color", p.background).Msg("programming background")
		if err := d.backend.SetProperty(p.crtcID, ObjectCRTC, p.backgroundProp, p.background); err != nil {
			return &CommitError{Object: p.object(), Err: err}
		}
		p.backgroundChanged = false
	}

	if !p.enabled {
		// untouched planes keep their dirty bits and are retried on the
		// next commit of an enabled configuration
		return nil
	}
	for _, pl := range p.planes {
		if !pl.dirty.Any() {
			continue
		}
		if err := d.commitPlane(p, pl, style); err != nil {
			return err
		}
	}
	return nil
}

// legacyFold reports whether these dirty bits are consumed by a legacy
// CRTC mode-set.
func legacyFold(dirty DirtyBits) bool {
	return dirty.FB || dirty.Position || dirty.Size || dirty.Panning
}

func (d *Display) programCRTC(p *Pipe) error {
	if !p.enabled {
		log.Debug().Str("pipe", p.Name()).Msg("disabling pipe")
		if err := d.backend.SetCRTC(CRTCRequest{CRTC: p.crtcID}); err != nil {
			return &CommitError{Object: p.object(), Err: err}
		}
		return nil
	}

	out := p.owner
	mode := out.Mode()
	req := CRTCRequest{
		CRTC:       p.crtcID,
		Mode:       &mode,
		Connectors: []uint32{out.id},
	}
	if primary := p.Primary(); primary != nil && primary.fb != nil {
		req.FB = primary.fb.ID
		req.X, req.Y = primary.panX, primary.panY
	}
	log.Debug().
		Str("pipe", p.Name()).
		Str("output", out.Name()).
		Str("mode", mode.Name).
		Uint32("fb", req.FB).
		Msg("programming pipe")
	if err := d.backend.SetCRTC(req); err != nil {
		return &CommitError{Object: p.object(), Err: err}
	}
	return nil
}

func (d *Display) commitPlane(p *Pipe, pl *Plane, style CommitStyle) error {
	if !styleCaps[style][pl.role] {
		return &StyleUnsupportedError{Style: style, Object: pl.object(), Role: pl.role}
	}

	switch {
	case style == CommitLegacy && pl.role == PlaneRoleCursor:
		var fbID uint32
		if pl.fb != nil {
			fbID = pl.fb.ID
		}
		log.Debug().Stringer("plane", pl.object()).Uint32("fb", fbID).Msg("programming cursor")
		if err := d.backend.SetCursor(p.crtcID, fbID, pl.x, pl.y); err != nil {
			return &CommitError{Object: pl.object(), Err: err}
		}
		pl.dirty.FB = false
		pl.dirty.Position = false
		pl.dirty.Size = false
		pl.dirty.Panning = false

	case style == CommitLegacy:
		// primary: fb/position/size/panning were folded into the pipe's
		// mode-set; only rotation can still be pending here

	default: // universal: one uniform call for every role
		req := PlaneRequest{Plane: pl.id}
		if pl.fb != nil {
			req.CRTC = p.crtcID
			req.FB = pl.fb.ID
			req.CrtcX, req.CrtcY = pl.x, pl.y
			req.CrtcW, req.CrtcH = pl.w, pl.h
			req.SrcX, req.SrcY = pl.panX<<16, pl.panY<<16
			req.SrcW, req.SrcH = pl.w<<16, pl.h<<16
		}
		log.Debug().Stringer("plane", pl.object()).Uint32("fb", req.FB).Msg("programming plane")
		if err := d.backend.SetPlane(req); err != nil {
			return &CommitError{Object: pl.object(), Err: err}
		}
		pl.dirty.FB = false
		pl.dirty.Position = false
		pl.dirty.Size = false
		pl.dirty.Panning = false
	}

	if pl.dirty.Rotation {
		log.Debug().Stringer("plane", pl.object()).Uint32("rotation", uint32(pl.rotation)).Msg("programming rotation")
		if err := d.backend.SetProperty(pl.id, ObjectPlane, pl.rotationProp, uint64(pl.rotation)); err != nil {
			return &CommitError{Object: pl.object(), Err: err}
		}
		pl.dirty.Rotation = false
	}
	return nil
}
