package kms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-kmslab/internal/kms"
	"github.com/coreman2200/funtimes-kmslab/internal/kms/fake"
)

// assertRouting checks that a pipe is enabled exactly when some valid
// output's pending mask includes it.
func assertRouting(t *testing.T, d *kms.Display) {
	t.Helper()
	for i := 0; i < d.PipeCount(); i++ {
		bound := false
		for _, o := range d.ConnectedOutputs() {
			if o.CurrentPipe() == i {
				bound = true
			}
		}
		assert.Equal(t, bound, d.Pipe(i).Enabled(), "pipe %s", d.Pipe(i).Name())
	}
}

func TestDefaultModePrefersPreferred(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())
	out := d.ConnectedOutputs()[0]
	assert.Equal(t, "1920x1080", out.Mode().Name)
}

func TestSetPipeDerivesEnabled(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())
	out := d.ConnectedOutputs()[0]

	assert.Equal(t, kms.PipeNone, out.CurrentPipe())

	out.SetPipe(1)
	assert.Equal(t, 1, out.CurrentPipe())
	assertRouting(t, d)
	assert.True(t, d.Pipe(1).Enabled())
	assert.Same(t, out, d.Pipe(1).Output())

	out.SetPipe(kms.PipeNone)
	assertRouting(t, d)
	assert.False(t, d.Pipe(1).Enabled())
	assert.Nil(t, d.Pipe(1).Output())
}

func TestSetPipeLastWriterWins(t *testing.T) {
	b := fake.NewUniversal()
	b.AddOutput("DP-1")
	d := newDisplay(t, b)

	outs := d.ConnectedOutputs()
	require.Len(t, outs, 2)
	a, c := outs[0], outs[1]

	a.SetPipe(0)
	c.SetPipe(0)
	assertRouting(t, d)

	assert.Equal(t, kms.PipeNone, a.CurrentPipe())
	assert.Equal(t, 0, c.CurrentPipe())
	assert.Same(t, c, d.Pipe(0).Output())
}

func TestSetPipeMovesBetweenPipes(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())
	out := d.ConnectedOutputs()[0]

	out.SetPipe(0)
	out.SetPipe(2)
	assertRouting(t, d)

	assert.Equal(t, 2, out.CurrentPipe())
	assert.False(t, d.Pipe(0).Enabled())
	assert.True(t, d.Pipe(2).Enabled())
}

func TestSetPipeIgnoredOnInvalidOutput(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())
	vga := d.Outputs()[1]
	require.False(t, vga.Valid())

	vga.SetPipe(0)
	assert.Equal(t, kms.PipeNone, vga.CurrentPipe())
	assert.False(t, d.Pipe(0).Enabled())
}

func TestOverrideModeReplacesEffectiveMode(t *testing.T) {
	d := newDisplay(t, fake.NewUniversal())
	out := d.ConnectedOutputs()[0]

	// unchecked on purpose: this timing is not in the connector's list
	custom := fake.ModeInfo("2560x1440", 2560, 1440, 75, false)
	out.OverrideMode(custom)
	assert.Equal(t, "2560x1440", out.Mode().Name)
	assert.Equal(t, uint16(2560), out.Mode().HDisplay)
}
