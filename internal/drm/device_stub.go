//go:build !linux

package drm

import (
	"errors"

	"github.com/coreman2200/funtimes-kmslab/internal/kms"
)

var errUnsupportedOS = errors.New("drm: kernel mode-setting requires linux")

// Device exists on non-linux builds so callers can compile; Open always
// fails and no method is reachable.
type Device struct{}

var _ kms.Backend = (*Device)(nil)

func Open(path string) (*Device, error) { return nil, errUnsupportedOS }

func (d *Device) Path() string                          { return "" }
func (d *Device) Discover() (*kms.Resources, error)     { return nil, errUnsupportedOS }
func (d *Device) SetCRTC(req kms.CRTCRequest) error     { return errUnsupportedOS }
func (d *Device) SetPlane(req kms.PlaneRequest) error   { return errUnsupportedOS }
func (d *Device) SetCursor(crtc, fb uint32, x, y int32) error {
	return errUnsupportedOS
}
func (d *Device) GetProperty(objectID, objectType uint32, name string) (uint32, uint64, bool, error) {
	return 0, 0, false, errUnsupportedOS
}
func (d *Device) SetProperty(objectID, objectType uint32, propID uint32, value uint64) error {
	return errUnsupportedOS
}
func (d *Device) Close() error { return nil }

// Surface mirrors the linux dumb-buffer surface.
type Surface struct {
	ID     uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Pix    []byte
}

func (d *Device) CreateSurface(width, height uint32, format uint32) (*Surface, error) {
	return nil, errUnsupportedOS
}

func (s *Surface) Framebuffer() *kms.Framebuffer {
	return &kms.Framebuffer{ID: s.ID, Width: s.Width, Height: s.Height}
}

func (s *Surface) Destroy() error { return nil }
