package kms_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-kmslab/internal/kms"
	"github.com/coreman2200/funtimes-kmslab/internal/kms/fake"
)

func newDisplay(t *testing.T, b *fake.Backend) *kms.Display {
	t.Helper()
	d, err := kms.NewDisplay(b)
	require.NoError(t, err)
	return d
}

func TestDiscoverUniversalTopology(t *testing.T) {
	b := fake.NewUniversal()
	d := newDisplay(t, b)

	assert.Equal(t, 3, d.PipeCount())
	assert.True(t, d.HasUniversalPlanes())

	for i := 0; i < d.PipeCount(); i++ {
		pipe := d.Pipe(i)
		require.Equal(t, 3, pipe.PlaneCount(), "pipe %s", pipe.Name())
		assert.Equal(t, kms.PlaneRolePrimary, pipe.Plane(0).Role())
		assert.Equal(t, kms.PlaneRoleOverlay, pipe.Plane(1).Role())
		assert.Equal(t, kms.PlaneRoleCursor, pipe.Plane(2).Role())

		assert.False(t, pipe.Plane(0).SupportsRotation())
		assert.True(t, pipe.Plane(1).SupportsRotation())
		assert.True(t, pipe.SupportsBackground())
		assert.False(t, pipe.Enabled())
	}
}

func TestDiscoverLegacyFallback(t *testing.T) {
	d := newDisplay(t, fake.NewLegacy())

	assert.False(t, d.HasUniversalPlanes())
	pipe := d.Pipe(0)
	require.Equal(t, 2, pipe.PlaneCount())
	assert.Equal(t, kms.PlaneRolePrimary, pipe.Plane(0).Role())
	assert.Equal(t, kms.PlaneRoleCursor, pipe.Plane(1).Role())
	assert.False(t, pipe.Plane(0).SupportsRotation())
	assert.False(t, pipe.Plane(1).SupportsRotation())
}

func TestDiscoverFailures(t *testing.T) {
	b := fake.NewUniversal()
	b.DiscoverErr = errors.New("device gone")
	_, err := kms.NewDisplay(b)
	var derr *kms.DiscoveryError
	require.ErrorAs(t, err, &derr)

	b = fake.NewUniversal()
	b.Res.CRTCs = nil
	_, err = kms.NewDisplay(b)
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Error(), "no pipes")
}

func TestConnectedOutputsSkipInvalid(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())

	require.Len(t, d.Outputs(), 2)
	connected := d.ConnectedOutputs()
	require.Len(t, connected, 1)
	assert.Equal(t, "HDMI-A-1", connected[0].Name())
	assert.True(t, connected[0].Valid())

	// the disconnected VGA output is still enumerable
	assert.Equal(t, "VGA-1", d.Outputs()[1].Name())
	assert.False(t, d.Outputs()[1].Valid())
}

func TestCloseIdempotent(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())
	out := d.ConnectedOutputs()[0]
	out.SetPipe(0)

	d.Close()
	d.Close()

	assert.False(t, d.Pipe(0).Enabled())
	assert.Error(t, d.TryCommit(kms.CommitUniversal))
}
