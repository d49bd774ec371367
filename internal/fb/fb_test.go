package fb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pixelAt(pix []byte, pitch, x, y uint32) uint32 {
	off := y*pitch + x*4
	return uint32(pix[off]) | uint32(pix[off+1])<<8 | uint32(pix[off+2])<<16 | uint32(pix[off+3])<<24
}

func TestFillSolid(t *testing.T) {
	const w, h, pitch = 8, 4, 8 * 4
	pix := make([]byte, pitch*h)
	require.NoError(t, Fill(pix, pitch, w, h, PatternSolid, 0xFF112233))

	assert.Equal(t, uint32(0xFF112233), pixelAt(pix, pitch, 0, 0))
	assert.Equal(t, uint32(0xFF112233), pixelAt(pix, pitch, w-1, h-1))
}

func TestFillGradientRamps(t *testing.T) {
	const w, h, pitch = 16, 2, 16 * 4
	pix := make([]byte, pitch*h)
	require.NoError(t, Fill(pix, pitch, w, h, PatternGradient, 0xFFFFFFFF))

	left := pixelAt(pix, pitch, 0, 0)
	right := pixelAt(pix, pitch, w-1, 0)
	assert.Equal(t, uint32(0xFF000000), left)
	assert.Equal(t, uint32(0xFFFFFFFF), right)

	// monotone along the row
	prev := left & 0xFF
	for x := uint32(1); x < w; x++ {
		cur := pixelAt(pix, pitch, x, 0) & 0xFF
		assert.GreaterOrEqual(t, cur, prev, "x=%d", x)
		prev = cur
	}
}

func TestFillBars(t *testing.T) {
	const w, h, pitch = 64, 2, 64 * 4
	pix := make([]byte, pitch*h)
	require.NoError(t, Fill(pix, pitch, w, h, PatternBars, 0))

	assert.Equal(t, uint32(0xFFFFFFFF), pixelAt(pix, pitch, 0, 0))  // white
	assert.Equal(t, uint32(0xFF000000), pixelAt(pix, pitch, 63, 1)) // black
	assert.Equal(t, uint32(0xFFFFFF00), pixelAt(pix, pitch, 8, 0))  // second bar
}

func TestFillRejectsShortBuffer(t *testing.T) {
	pix := make([]byte, 8)
	assert.Error(t, Fill(pix, 32, 8, 8, PatternSolid, 0))
}

func TestFillRejectsUnknownPattern(t *testing.T) {
	pix := make([]byte, 16)
	assert.Error(t, Fill(pix, 16, 4, 1, Pattern("noise"), 0))
}

func TestFillHonorsPitchPadding(t *testing.T) {
	// pitch wider than the row: padding bytes stay zero
	const w, h, pitch = 4, 2, 4*4 + 16
	pix := make([]byte, pitch*h)
	require.NoError(t, Fill(pix, pitch, w, h, PatternSolid, 0xFFFFFFFF))

	for i := w * 4; i < pitch; i++ {
		assert.Zero(t, pix[i], "padding byte %d", i)
	}
}
