// Package checks steps a display through the built-in harness exercises
// and reports structured findings.
package checks

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	diag "github.com/coreman2200/funtimes-kmslab/internal/diagnostics"
	"github.com/coreman2200/funtimes-kmslab/internal/kms"
)

type Kind string

const (
	None         Kind = ""
	ModesetEach  Kind = "modeset_each"
	PlaneSweep   Kind = "plane_sweep"
	StyleCompare Kind = "style_compare"
)

// Plan selects a check and the commit style it drives the hardware with.
// StyleCompare ignores Style and exercises both.
type Plan struct {
	Kind  Kind
	Style kms.CommitStyle
}

// SurfaceFunc allocates a painted scanout buffer. The runner treats the
// returned reference as opaque; the provider owns the memory.
type SurfaceFunc func(width, height uint32) (*kms.Framebuffer, error)

// Runner executes one plan against a display.
type Runner struct {
	display *kms.Display
	surface SurfaceFunc
	plan    Plan
	diags   []diag.Diagnostic
}

func NewRunner(d *kms.Display, surface SurfaceFunc, plan Plan) *Runner {
	return &Runner{display: d, surface: surface, plan: plan}
}

func (r *Runner) Kind() Kind { return r.plan.Kind }

// Run executes the plan to completion and returns its findings. The
// display is left with all outputs unbound.
func (r *Runner) Run() []diag.Diagnostic {
	r.diags = nil
	log.Info().Str("check", string(r.plan.Kind)).Msg("check starting")

	var err error
	switch r.plan.Kind {
	case ModesetEach:
		err = r.modesetEach()
	case PlaneSweep:
		err = r.planeSweep()
	case StyleCompare:
		err = r.styleCompare()
	case None:
	default:
		r.push(diag.Warn, "CHECK.UNKNOWN", "Unknown check name", map[string]any{"name": string(r.plan.Kind)})
	}
	if err != nil {
		r.push(diag.Err, "CHECK.ABORT", "Check aborted", map[string]any{"error": err.Error()})
	}

	r.unbindAll()
	return r.diags
}

func (r *Runner) push(sev diag.Severity, code, summary string, ev map[string]any) {
	r.diags = append(r.diags, diag.Diagnostic{
		Severity: sev, Code: code, Summary: summary, Evidence: ev,
	})
}

func (r *Runner) unbindAll() {
	for _, out := range r.display.ConnectedOutputs() {
		out.SetPipe(kms.PipeNone)
	}
	if err := r.display.TryCommit(kms.CommitLegacy); err != nil {
		log.Warn().Err(err).Msg("teardown commit failed")
	}
}

// bindFullScreen routes out to pipe and stages a mode-sized fb on the
// pipe's primary plane.
func (r *Runner) bindFullScreen(out *kms.Output, pipe int) error {
	mode := out.Mode()
	fbr, err := r.surface(uint32(mode.HDisplay), uint32(mode.VDisplay))
	if err != nil {
		return fmt.Errorf("surface %dx%d: %w", mode.HDisplay, mode.VDisplay, err)
	}
	out.SetPipe(pipe)
	r.display.Pipe(pipe).Primary().SetFB(fbr)
	return nil
}

// modesetEach drives every connected output on every pipe its encoder can
// reach, one at a time.
func (r *Runner) modesetEach() error {
	for _, out := range r.display.ConnectedOutputs() {
		possible := out.Config().Encoder.PossibleCRTCs
		for pipe := 0; pipe < r.display.PipeCount(); pipe++ {
			if possible&(1<<uint(pipe)) == 0 {
				continue
			}
			ev := map[string]any{"output": out.Name(), "pipe": kms.PipeName(pipe), "mode": out.Mode().Name}
			if err := r.bindFullScreen(out, pipe); err != nil {
				return err
			}
			if err := r.display.TryCommit(r.plan.Style); err != nil {
				ev["error"] = err.Error()
				r.push(diag.Err, "CHECK.MODESET.FAIL", "Mode-set failed", ev)
			} else {
				r.push(diag.Info, "CHECK.MODESET.PASS", "Mode-set succeeded", ev)
			}
			out.SetPipe(kms.PipeNone)
			if err := r.display.TryCommit(r.plan.Style); err != nil {
				log.Warn().Err(err).Str("output", out.Name()).Msg("disable after modeset failed")
			}
		}
	}
	return nil
}

// sweepPositions are the corner and center placements a swept overlay
// visits.
var sweepPositions = [][2]int32{{0, 0}, {256, 0}, {0, 256}, {256, 256}, {128, 128}}

// planeSweep walks every overlay of one enabled pipe across the screen.
// Overlay programming needs the universal style regardless of the plan.
func (r *Runner) planeSweep() error {
	if !r.display.HasUniversalPlanes() {
		r.push(diag.Warn, "CHECK.SWEEP.SKIP", "No universal planes", nil)
		return nil
	}
	outs := r.display.ConnectedOutputs()
	if len(outs) == 0 {
		r.push(diag.Warn, "CHECK.SWEEP.SKIP", "No connected outputs", nil)
		return nil
	}
	out := outs[0]
	pipe := out.Config().CRTCIndex
	if err := r.bindFullScreen(out, pipe); err != nil {
		return err
	}
	if err := r.display.TryCommit(kms.CommitUniversal); err != nil {
		return fmt.Errorf("enable pipe %s: %w", kms.PipeName(pipe), err)
	}

	p := r.display.Pipe(pipe)
	for i := 0; i < p.PlaneCount(); i++ {
		pl := p.Plane(i)
		if pl.Role() != kms.PlaneRoleOverlay {
			continue
		}
		fbr, err := r.surface(256, 256)
		if err != nil {
			return err
		}
		pl.SetFB(fbr)
		failed := 0
		for _, pos := range sweepPositions {
			pl.SetPosition(pos[0], pos[1])
			if err := r.display.TryCommit(kms.CommitUniversal); err != nil {
				failed++
			}
		}
		ev := map[string]any{"plane": pl.Index(), "positions": len(sweepPositions), "failed": failed}
		if failed > 0 {
			r.push(diag.Err, "CHECK.SWEEP.FAIL", "Overlay sweep had failures", ev)
		} else {
			r.push(diag.Info, "CHECK.SWEEP.PASS", "Overlay swept", ev)
		}
		pl.SetFB(nil)
		if err := r.display.TryCommit(kms.CommitUniversal); err != nil {
			return err
		}
	}
	return nil
}

// styleCompare programs the same staging through the legacy and universal
// paths and confirms the overlay restriction splits them.
func (r *Runner) styleCompare() error {
	outs := r.display.ConnectedOutputs()
	if len(outs) == 0 {
		r.push(diag.Warn, "CHECK.STYLE.SKIP", "No connected outputs", nil)
		return nil
	}
	out := outs[0]
	pipe := out.Config().CRTCIndex

	for _, style := range []kms.CommitStyle{kms.CommitLegacy, kms.CommitUniversal} {
		if style == kms.CommitUniversal && !r.display.HasUniversalPlanes() {
			r.push(diag.Warn, "CHECK.STYLE.SKIP", "No universal planes", nil)
			continue
		}
		if err := r.bindFullScreen(out, pipe); err != nil {
			return err
		}
		ev := map[string]any{"style": style.String()}
		if err := r.display.TryCommit(style); err != nil {
			ev["error"] = err.Error()
			r.push(diag.Err, "CHECK.STYLE.FAIL", "Primary commit failed", ev)
		} else {
			r.push(diag.Info, "CHECK.STYLE.PASS", "Primary commit succeeded", ev)
		}
		out.SetPipe(kms.PipeNone)
		if err := r.display.TryCommit(style); err != nil {
			return err
		}
	}

	// the overlay restriction: identical staging, opposite outcomes
	if !r.display.HasUniversalPlanes() {
		return nil
	}
	if err := r.bindFullScreen(out, pipe); err != nil {
		return err
	}
	p := r.display.Pipe(pipe)
	var overlay *kms.Plane
	for i := 0; i < p.PlaneCount(); i++ {
		if p.Plane(i).Role() == kms.PlaneRoleOverlay {
			overlay = p.Plane(i)
			break
		}
	}
	if overlay == nil {
		return nil
	}
	fbr, err := r.surface(256, 256)
	if err != nil {
		return err
	}
	overlay.SetFB(fbr)

	var serr *kms.StyleUnsupportedError
	legacyErr := r.display.TryCommit(kms.CommitLegacy)
	if !errors.As(legacyErr, &serr) {
		r.push(diag.Err, "CHECK.STYLE.OVERLAY", "Legacy style accepted an overlay", map[string]any{
			"error": fmt.Sprint(legacyErr),
		})
	}
	if err := r.display.TryCommit(kms.CommitUniversal); err != nil {
		r.push(diag.Err, "CHECK.STYLE.OVERLAY", "Universal overlay commit failed", map[string]any{
			"error": err.Error(),
		})
	} else {
		r.push(diag.Info, "CHECK.STYLE.OVERLAY", "Overlay restriction holds", nil)
	}
	return nil
}
