// Package fb allocates scanout surfaces and paints the harness test
// patterns into them.
package fb

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-kmslab/internal/drm"
)

// Pattern selects what gets painted into a fresh surface.
type Pattern string

const (
	PatternSolid    Pattern = "solid"
	PatternGradient Pattern = "gradient"
	PatternBars     Pattern = "bars"
)

// barColors is the classic color-bar sequence, full intensity.
var barColors = []uint32{
	0xFFFFFFFF, // white
	0xFFFFFF00, // yellow
	0xFF00FFFF, // cyan
	0xFF00FF00, // green
	0xFFFF00FF, // magenta
	0xFFFF0000, // red
	0xFF0000FF, // blue
	0xFF000000, // black
}

// Fill paints pattern into a 32bpp little-endian pixel buffer. pitch is
// the row stride in bytes; argb seeds solid and gradient fills.
func Fill(pix []byte, pitch, width, height uint32, pattern Pattern, argb uint32) error {
	if uint64(len(pix)) < uint64(pitch)*uint64(height) {
		return fmt.Errorf("fb: buffer %d bytes short of %dx%d at pitch %d",
			len(pix), width, height, pitch)
	}
	switch pattern {
	case PatternSolid:
		for y := uint32(0); y < height; y++ {
			row := y * pitch
			for x := uint32(0); x < width; x++ {
				putPixel(pix, row+x*4, argb)
			}
		}
	case PatternGradient:
		for y := uint32(0); y < height; y++ {
			row := y * pitch
			for x := uint32(0); x < width; x++ {
				putPixel(pix, row+x*4, scale(argb, x, width))
			}
		}
	case PatternBars:
		barW := width / uint32(len(barColors))
		if barW == 0 {
			barW = 1
		}
		for y := uint32(0); y < height; y++ {
			row := y * pitch
			for x := uint32(0); x < width; x++ {
				bar := int(x / barW)
				if bar >= len(barColors) {
					bar = len(barColors) - 1
				}
				putPixel(pix, row+x*4, barColors[bar])
			}
		}
	default:
		return fmt.Errorf("fb: unknown pattern %q", pattern)
	}
	return nil
}

func putPixel(pix []byte, off uint32, argb uint32) {
	pix[off] = byte(argb)         // b
	pix[off+1] = byte(argb >> 8)  // g
	pix[off+2] = byte(argb >> 16) // r
	pix[off+3] = byte(argb >> 24)
}

// scale ramps each color channel of argb from 0 at x=0 to full at the
// right edge. Alpha passes through.
func scale(argb, x, width uint32) uint32 {
	if width <= 1 {
		return argb
	}
	f := x * 255 / (width - 1)
	r := (argb >> 16 & 0xFF) * f / 255
	g := (argb >> 8 & 0xFF) * f / 255
	b := (argb & 0xFF) * f / 255
	return argb&0xFF000000 | r<<16 | g<<8 | b
}

// Provider allocates painted surfaces on one device and tracks them for
// teardown.
type Provider struct {
	dev      *drm.Device
	surfaces []*drm.Surface
}

func NewProvider(dev *drm.Device) *Provider {
	return &Provider{dev: dev}
}

// Create allocates a surface and paints it. The returned surface stays
// registered with the provider until Close.
func (p *Provider) Create(width, height uint32, pattern Pattern, argb uint32) (*drm.Surface, error) {
	s, err := p.dev.CreateSurface(width, height, drm.FormatXRGB8888)
	if err != nil {
		return nil, err
	}
	if err := Fill(s.Pix, s.Pitch, s.Width, s.Height, pattern, argb); err != nil {
		_ = s.Destroy()
		return nil, err
	}
	p.surfaces = append(p.surfaces, s)
	return s, nil
}

// CreateCursor allocates a square ARGB cursor surface with a solid fill.
// Cursor planes want alpha, so the format differs from Create.
func (p *Provider) CreateCursor(size uint32, argb uint32) (*drm.Surface, error) {
	s, err := p.dev.CreateSurface(size, size, drm.FormatARGB8888)
	if err != nil {
		return nil, err
	}
	if err := Fill(s.Pix, s.Pitch, s.Width, s.Height, PatternSolid, argb); err != nil {
		_ = s.Destroy()
		return nil, err
	}
	p.surfaces = append(p.surfaces, s)
	return s, nil
}

// Close destroys every surface the provider handed out.
func (p *Provider) Close() {
	for _, s := range p.surfaces {
		if err := s.Destroy(); err != nil {
			log.Warn().Err(err).Uint32("fb", s.ID).Msg("surface teardown failed")
		}
	}
	p.surfaces = nil
}
