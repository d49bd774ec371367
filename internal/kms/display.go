package kms

import (
	"sort"

	"github.com/rs/zerolog/log"
)

const (
	maxPipes         = 3 // pipes A..C
	maxPlanesPerPipe = 4
)

// Display owns the topology snapshot and all staged state for one device.
// One instance per display handle; callers serialize access.
type Display struct {
	backend Backend

	pipes   []*Pipe
	outputs []*Output

	hasUniversalPlanes bool
	closed             bool
}

// NewDisplay discovers the hardware topology through backend and builds a
// Display around it. Fails with *DiscoveryError when the backend reports
// no pipes or cannot enumerate.
func NewDisplay(backend Backend) (*Display, error) {
	res, err := backend.Discover()
	if err != nil {
		return nil, &DiscoveryError{Reason: "enumerating resources", Err: err}
	}
	if len(res.CRTCs) == 0 {
		return nil, &DiscoveryError{Reason: "no pipes reported"}
	}

	d := &Display{
		backend:            backend,
		hasUniversalPlanes: len(res.Planes) > 0,
	}

	n := len(res.CRTCs)
	if n > maxPipes {
		n = maxPipes
	}
	for i := 0; i < n; i++ {
		pipe := &Pipe{display: d, index: i, crtcID: res.CRTCs[i]}
		if id, _, ok, err := backend.GetProperty(pipe.crtcID, ObjectCRTC, "background_color"); err == nil && ok {
			pipe.backgroundProp = id
		}
		if d.hasUniversalPlanes {
			pipe.planes = probePlanes(backend, pipe, res.Planes)
		} else {
			pipe.planes = legacyPlanes(pipe)
		}
		d.pipes = append(d.pipes, pipe)
	}

	allowed := uint32(1)<<uint(n) - 1
	for _, conn := range res.Connectors {
		out := &Output{display: d, id: conn.ID, name: conn.Name}
		if cfg, ok := resolveConfig(conn, res.Encoders, res.CRTCs[:n], allowed); ok {
			out.config = cfg
			out.valid = true
		} else {
			log.Debug().Str("output", conn.Name).Msg("no usable configuration, output marked invalid")
		}
		d.outputs = append(d.outputs, out)
	}

	log.Debug().
		Int("pipes", len(d.pipes)).
		Int("outputs", len(d.outputs)).
		Bool("universal_planes", d.hasUniversalPlanes).
		Msg("display initialized")
	return d, nil
}

// probePlanes collects the universal planes that can scan out on pipe,
// classifies them by the "type" property and probes rotation support.
// Ordering is primary first, overlays in reported order, cursor last.
func probePlanes(backend Backend, pipe *Pipe, infos []PlaneInfo) []*Plane {
	var planes []*Plane
	for _, info := range infos {
		if info.PossibleCRTCs&(1<<uint(pipe.index)) == 0 {
			continue
		}
		pl := &Plane{pipe: pipe, id: info.ID, role: PlaneRoleOverlay}
		if _, value, ok, err := backend.GetProperty(info.ID, ObjectPlane, "type"); err == nil && ok {
			switch value {
			case PlaneTypePrimary:
				pl.role = PlaneRolePrimary
			case PlaneTypeCursor:
				pl.role = PlaneRoleCursor
			}
		}
		if id, _, ok, err := backend.GetProperty(info.ID, ObjectPlane, "rotation"); err == nil && ok {
			pl.rotationProp = id
		}
		planes = append(planes, pl)
	}

	sort.SliceStable(planes, func(i, j int) bool {
		return roleOrder(planes[i].role) < roleOrder(planes[j].role)
	})
	if len(planes) > maxPlanesPerPipe {
		// keep primary, leading overlays, and the cursor
		trimmed := planes[:maxPlanesPerPipe-1]
		if cursor := planes[len(planes)-1]; cursor.role == PlaneRoleCursor {
			trimmed = append(trimmed, cursor)
		}
		planes = trimmed
	}
	for i, pl := range planes {
		pl.index = i
	}
	return planes
}

func roleOrder(r PlaneRole) int {
	switch r {
	case PlaneRolePrimary:
		return 0
	case PlaneRoleCursor:
		return 2
	}
	return 1
}

// legacyPlanes synthesizes the primary+cursor model for hardware that
// reports no plane resources. Neither plane has an object id, so neither
// can carry a rotation property.
func legacyPlanes(pipe *Pipe) []*Plane {
	return []*Plane{
		{pipe: pipe, index: 0, role: PlaneRolePrimary},
		{pipe: pipe, index: 1, role: PlaneRoleCursor},
	}
}

// HasUniversalPlanes reports whether every plane is individually
// addressable, vs the legacy primary+cursor model.
func (d *Display) HasUniversalPlanes() bool { return d.hasUniversalPlanes }

func (d *Display) PipeCount() int { return len(d.pipes) }

func (d *Display) Pipe(i int) *Pipe {
	if i < 0 || i >= len(d.pipes) {
		return nil
	}
	return d.pipes[i]
}

// Outputs returns every discovered output, valid or not.
func (d *Display) Outputs() []*Output { return d.outputs }

// ConnectedOutputs returns the outputs with a usable resolved
// configuration, in discovery order.
func (d *Display) ConnectedOutputs() []*Output {
	var outs []*Output
	for _, o := range d.outputs {
		if o.valid {
			outs = append(outs, o)
		}
	}
	return outs
}

// refreshRouting rederives each pipe's enabled flag and bound output from
// the outputs' pending masks. Any routing change marks the pipe for a
// mode-set on the next commit.
func (d *Display) refreshRouting() {
	for _, p := range d.pipes {
		var owner *Output
		for _, o := range d.outputs {
			if o.valid && o.pendingPipeMask&(1<<uint(p.index)) != 0 {
				owner = o
				break
			}
		}
		if owner != p.owner {
			p.owner = owner
			p.enabled = owner != nil
			p.modeChanged = true
		}
	}
}

// Close releases the engine's view of the topology. Idempotent and safe on
// a partially initialized display. The backend stays open; its owner
// closes it.
func (d *Display) Close() {
	if d.closed {
		return
	}
	d.closed = true
	for _, o := range d.outputs {
		o.valid = false
		o.pendingPipeMask = 0
		o.overrideMode = nil
	}
	for _, p := range d.pipes {
		p.owner = nil
		p.enabled = false
		for _, pl := range p.planes {
			pl.fb = nil
		}
	}
}
