package kms_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-kmslab/internal/kms"
	"github.com/coreman2200/funtimes-kmslab/internal/kms/fake"
)

// bindWithPrimary routes the first connected output to pipe 0 and stages a
// full-screen fb on the primary plane.
func bindWithPrimary(t *testing.T, d *kms.Display) *kms.Output {
	t.Helper()
	out := d.ConnectedOutputs()[0]
	out.SetPipe(0)
	d.Pipe(0).Primary().SetFB(&kms.Framebuffer{ID: 77, Width: 1920, Height: 1080})
	return out
}

func TestCommitProgramsModeset(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	out := bindWithPrimary(t, d)

	require.NoError(t, d.Commit(kms.CommitUniversal))

	require.Equal(t, []string{"set_crtc", "set_plane"}, b.CallOps())
	crtc := b.Calls[0].CRTC
	assert.Equal(t, uint32(100), crtc.CRTC)
	assert.Equal(t, uint32(77), crtc.FB)
	require.NotNil(t, crtc.Mode)
	assert.Equal(t, "1920x1080", crtc.Mode.Name)
	assert.Equal(t, []uint32{out.ID()}, crtc.Connectors)

	plane := b.Calls[1].Plane
	assert.Equal(t, uint32(77), plane.FB)
	assert.Equal(t, uint32(100), plane.CRTC)
	assert.Equal(t, uint32(1920), plane.CrtcW)
	assert.Equal(t, uint32(1920)<<16, plane.SrcW)

	assert.False(t, d.Pipe(0).Primary().Dirty().Any())
}

func TestCommitIdempotentWithoutStagedChanges(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	bindWithPrimary(t, d)

	require.NoError(t, d.Commit(kms.CommitUniversal))
	b.Reset()

	// nothing staged since the last successful commit
	require.NoError(t, d.Commit(kms.CommitUniversal))
	assert.Empty(t, b.Calls)
}

func TestLegacyRejectsOverlayUniversalAccepts(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	bindWithPrimary(t, d)
	overlay := d.Pipe(0).Plane(1)
	overlay.SetFB(&kms.Framebuffer{ID: 78, Width: 256, Height: 256})

	err := d.TryCommit(kms.CommitLegacy)
	var serr *kms.StyleUnsupportedError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, kms.PlaneRoleOverlay, serr.Role)
	assert.Equal(t, kms.ObjectID{Pipe: 0, Plane: 1}, serr.Object)
	assert.True(t, overlay.Dirty().Any())

	// the very same staging succeeds with the universal style
	require.NoError(t, d.TryCommit(kms.CommitUniversal))
	assert.False(t, overlay.Dirty().Any())
}

func TestCommitStopsOnFirstFailure(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	bindWithPrimary(t, d)
	require.NoError(t, d.Commit(kms.CommitUniversal))

	pipe := d.Pipe(0)
	for i := 0; i < 3; i++ {
		pipe.Plane(i).SetFB(&kms.Framebuffer{ID: uint32(90 + i), Width: 64, Height: 64})
	}

	hwErr := errors.New("EINVAL")
	planeSets := 0
	b.FailOn = func(c fake.Call) error {
		if c.Op != "set_plane" {
			return nil
		}
		planeSets++
		if planeSets == 2 {
			return hwErr
		}
		return nil
	}
	b.Reset()

	err := d.TryCommit(kms.CommitUniversal)
	var cerr *kms.CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, kms.ObjectID{Pipe: 0, Plane: 1}, cerr.Object)
	assert.ErrorIs(t, cerr, hwErr)

	// plane 0 was programmed and is clean; plane 1 failed and stays
	// dirty; plane 2 was never attempted and stays dirty
	assert.False(t, pipe.Plane(0).Dirty().Any())
	assert.True(t, pipe.Plane(1).Dirty().Any())
	assert.True(t, pipe.Plane(2).Dirty().Any())
	assert.Equal(t, []string{"set_plane", "set_plane"}, b.CallOps())

	// a retry after the fault clears picks up exactly the leftovers
	b.FailOn = nil
	b.Reset()
	require.NoError(t, d.TryCommit(kms.CommitUniversal))
	assert.Equal(t, []string{"set_plane", "set_plane"}, b.CallOps())
	assert.False(t, pipe.Plane(1).Dirty().Any())
	assert.False(t, pipe.Plane(2).Dirty().Any())
}

func TestCommitRetainsStagedValues(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	bindWithPrimary(t, d)
	overlay := d.Pipe(0).Plane(1)
	overlay.SetFB(&kms.Framebuffer{ID: 80, Width: 400, Height: 300})
	overlay.SetPosition(10, 20)
	overlay.SetSize(100, 200)

	require.NoError(t, d.Commit(kms.CommitUniversal))

	// a successful commit clears the markers, not the values
	assert.False(t, overlay.Dirty().Any())
	x, y := overlay.Position()
	w, h := overlay.Size()
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(20), y)
	assert.Equal(t, uint32(100), w)
	assert.Equal(t, uint32(200), h)
}

func TestDisabledPipeKeepsPlanesDirty(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	out := d.ConnectedOutputs()[0]

	plane := d.Pipe(1).Primary()
	plane.SetFB(&kms.Framebuffer{ID: 81, Width: 1920, Height: 1080})

	// pipe 1 has no output bound: nothing is issued, staging survives
	require.NoError(t, d.Commit(kms.CommitUniversal))
	assert.Empty(t, b.Calls)
	assert.True(t, plane.Dirty().Any())

	out.SetPipe(1)
	require.NoError(t, d.Commit(kms.CommitUniversal))
	assert.Equal(t, []string{"set_crtc", "set_plane"}, b.CallOps())
	assert.False(t, plane.Dirty().Any())
}

func TestUnbindDisablesPipe(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	out := bindWithPrimary(t, d)
	require.NoError(t, d.Commit(kms.CommitUniversal))

	out.SetPipe(kms.PipeNone)
	b.Reset()
	require.NoError(t, d.Commit(kms.CommitUniversal))

	require.Equal(t, []string{"set_crtc"}, b.CallOps())
	crtc := b.Calls[0].CRTC
	assert.Equal(t, uint32(0), crtc.FB)
	assert.Nil(t, crtc.Mode)
}

func TestRebindCommitsNewOutputConfig(t *testing.T) {
	b := fake.NewUniversal()
	dpID := b.AddOutput("DP-1", fake.ModeInfo("1280x720", 1280, 720, 60, true))
	d := newDisplay(t, b)
	outs := d.ConnectedOutputs()
	require.Len(t, outs, 2)

	outs[0].SetPipe(0)
	d.Pipe(0).Primary().SetFB(&kms.Framebuffer{ID: 77, Width: 1920, Height: 1080})
	require.NoError(t, d.Commit(kms.CommitUniversal))

	// last writer wins: the pipe now belongs to DP-1
	outs[1].SetPipe(0)
	b.Reset()
	require.NoError(t, d.Commit(kms.CommitUniversal))

	require.Equal(t, []string{"set_crtc"}, b.CallOps())
	crtc := b.Calls[0].CRTC
	assert.Equal(t, []uint32{dpID}, crtc.Connectors)
	require.NotNil(t, crtc.Mode)
	assert.Equal(t, "1280x720", crtc.Mode.Name)
}

func TestOverrideModeProgrammedAtCommit(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	out := bindWithPrimary(t, d)
	require.NoError(t, d.Commit(kms.CommitUniversal))

	out.OverrideMode(fake.ModeInfo("2560x1440", 2560, 1440, 75, false))
	b.Reset()
	require.NoError(t, d.Commit(kms.CommitUniversal))

	require.NotEmpty(t, b.Calls)
	require.Equal(t, "set_crtc", b.Calls[0].Op)
	assert.Equal(t, "2560x1440", b.Calls[0].CRTC.Mode.Name)
}

func TestBackgroundProgrammedViaProperty(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	bindWithPrimary(t, d)
	require.NoError(t, d.Commit(kms.CommitUniversal))

	require.NoError(t, d.Pipe(0).SetBackground(0x0000FFFF)) // red, BGR 16bpc
	b.Reset()
	require.NoError(t, d.Commit(kms.CommitUniversal))

	require.Equal(t, []string{"set_property"}, b.CallOps())
	call := b.Calls[0]
	assert.Equal(t, uint32(100), call.PropObject)
	assert.Equal(t, uint64(0x0000FFFF), call.PropValue)

	b.Reset()
	require.NoError(t, d.Commit(kms.CommitUniversal))
	assert.Empty(t, b.Calls)
}

func TestRotationProgrammedViaProperty(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)
	bindWithPrimary(t, d)
	overlay := d.Pipe(0).Plane(1)
	overlay.SetFB(&kms.Framebuffer{ID: 82, Width: 128, Height: 128})
	require.NoError(t, overlay.SetRotation(kms.Rotate180))

	require.NoError(t, d.Commit(kms.CommitUniversal))

	ops := b.CallOps()
	require.Equal(t, []string{"set_crtc", "set_plane", "set_plane", "set_property"}, ops)
	last := b.Calls[len(b.Calls)-1]
	assert.Equal(t, uint64(kms.Rotate180), last.PropValue)
	assert.False(t, overlay.Dirty().Rotation)
}

func TestLegacyCursorProgrammed(t *testing.T) {
	b := fake.NewLegacy()
	d := newDisplay(t, b)
	bindWithPrimary(t, d)
	cursor := d.Pipe(0).Cursor()
	cursor.SetFB(&kms.Framebuffer{ID: 83, Width: 64, Height: 64})
	cursor.SetPosition(500, 400)

	require.NoError(t, d.Commit(kms.CommitLegacy))

	require.Equal(t, []string{"set_crtc", "set_cursor"}, b.CallOps())
	cur := b.Calls[1]
	assert.Equal(t, uint32(100), cur.CursorCRTC)
	assert.Equal(t, uint32(83), cur.CursorFB)
	assert.Equal(t, int32(500), cur.CursorX)
	assert.Equal(t, int32(400), cur.CursorY)
	assert.False(t, cursor.Dirty().Any())
}

func TestAtomicStyleReserved(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())
	err := d.TryCommit(kms.CommitAtomic)
	require.ErrorIs(t, err, kms.ErrUnsupported)
}

func TestUniversalStyleNeedsUniversalPlanes(t *testing.T) {
	d := newDisplay(t, fake.NewLegacy())
	err := d.TryCommit(kms.CommitUniversal)
	require.ErrorIs(t, err, kms.ErrUnsupported)
}
