package edid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseBlockValid(t *testing.T) {
	b := Base()
	assert.True(t, b.Valid())

	tm := b.PreferredTiming()
	assert.Equal(t, uint16(1920), tm.HActive)
	assert.Equal(t, uint16(1080), tm.VActive)
	assert.Equal(t, uint32(148500), tm.ClockKHz)
}

func TestAltBlockDiffers(t *testing.T) {
	base, alt := Base(), Alt()
	assert.True(t, alt.Valid())
	assert.NotEqual(t, base, alt)
	assert.Equal(t, uint16(1400), alt.PreferredTiming().HActive)
}

func TestChecksumCoversTampering(t *testing.T) {
	b := Base()
	b[60] ^= 0xFF
	assert.False(t, b.Valid())
}

func TestTimingRoundTrip(t *testing.T) {
	in := Timing{ClockKHz: 594000, HActive: 3840, HBlank: 560, VActive: 2160, VBlank: 90}
	b := New(in, "UHD")
	require.True(t, b.Valid())
	assert.Equal(t, in, b.PreferredTiming())
}

func TestStimulusWritesNodes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "HDMI-A-1"), 0o755))
	s := NewStimulusAt(root)

	require.NoError(t, s.Force("HDMI-A-1", ForceOn))
	got, err := os.ReadFile(filepath.Join(root, "HDMI-A-1", "force"))
	require.NoError(t, err)
	assert.Equal(t, "on", string(got))

	b := Base()
	require.NoError(t, s.Override("HDMI-A-1", b))
	got, err = os.ReadFile(filepath.Join(root, "HDMI-A-1", "edid_override"))
	require.NoError(t, err)
	assert.Equal(t, b[:], got)

	require.NoError(t, s.ClearOverride("HDMI-A-1"))
	got, err = os.ReadFile(filepath.Join(root, "HDMI-A-1", "edid_override"))
	require.NoError(t, err)
	assert.Equal(t, "reset", string(got))

	// missing connector directory surfaces as an error
	assert.Error(t, s.Force("DP-9", ForceOff))
}
