package kms

import "fmt"

// PlaneRole classifies what a plane scans out. On legacy hardware the
// primary and cursor are implicit (no plane object of their own); with
// universal planes every role is an addressable object.
type PlaneRole int

const (
	PlaneRolePrimary PlaneRole = iota
	PlaneRoleOverlay
	PlaneRoleCursor
)

func (r PlaneRole) String() string {
	switch r {
	case PlaneRolePrimary:
		return "primary"
	case PlaneRoleOverlay:
		return "overlay"
	case PlaneRoleCursor:
		return "cursor"
	}
	return "unknown"
}

// Rotation is the kernel rotation bitmask.
type Rotation uint32

const (
	Rotate0 Rotation = 1 << iota
	Rotate90
	Rotate180
	Rotate270
)

// DirtyBits is the per-attribute staged-but-not-committed markers of a
// plane. A successful commit clears exactly the bits it acted on.
type DirtyBits struct {
	FB       bool
	Position bool
	Panning  bool
	Rotation bool
	Size     bool
}

// Any reports whether the plane needs programming at all.
func (d DirtyBits) Any() bool {
	return d.FB || d.Position || d.Panning || d.Rotation || d.Size
}

// Plane is the staged state of one hardware scanout layer. Mutators only
// write memory and raise dirty bits; nothing reaches the hardware until
// the display commits.
type Plane struct {
	pipe  *Pipe
	index int
	role  PlaneRole
	id    uint32 // drm plane object id; 0 for synthesized legacy planes

	rotationProp uint32 // 0 when the hardware exposes no rotation property

	fb         *Framebuffer
	x, y       int32
	w, h       uint32
	panX, panY uint32
	rotation   Rotation

	dirty DirtyBits
}

func (p *Plane) Index() int      { return p.index }
func (p *Plane) Role() PlaneRole { return p.role }

// SupportsRotation reports whether the rotation capability token was found
// at discovery time.
func (p *Plane) SupportsRotation() bool { return p.rotationProp != 0 }

func (p *Plane) FB() *Framebuffer          { return p.fb }
func (p *Plane) Position() (int32, int32)  { return p.x, p.y }
func (p *Plane) Size() (uint32, uint32)    { return p.w, p.h }
func (p *Plane) Panning() (uint32, uint32) { return p.panX, p.panY }
func (p *Plane) Rotation() Rotation        { return p.rotation }
func (p *Plane) Dirty() DirtyBits          { return p.dirty }

func (p *Plane) object() ObjectID {
	return ObjectID{Pipe: p.pipe.index, Plane: p.index}
}

// SetFB stages fb on the plane. Position defaults to (0,0) and size to the
// framebuffer's native dimensions; call SetPosition/SetSize afterwards to
// override. A nil fb clears the reference and leaves position and size
// dirty at full extent so the next assignment reprograms them.
func (p *Plane) SetFB(fb *Framebuffer) {
	p.fb = fb
	p.x, p.y = 0, 0
	if fb != nil {
		p.w, p.h = fb.Width, fb.Height
	} else {
		p.w, p.h = 0, 0
	}
	p.dirty.FB = true
	p.dirty.Position = true
	p.dirty.Size = true
}

// SetPosition stages the plane's top-left corner in CRTC coordinates.
func (p *Plane) SetPosition(x, y int32) {
	p.x, p.y = x, y
	p.dirty.Position = true
}

// SetSize stages the plane's width and height on the CRTC.
func (p *Plane) SetSize(w, h uint32) {
	p.w, p.h = w, h
	p.dirty.Size = true
}

// SetPanning stages the fetch offset into the framebuffer.
func (p *Plane) SetPanning(x, y uint32) {
	p.panX, p.panY = x, y
	p.dirty.Panning = true
}

// SetRotation stages a rotation. Fails with ErrUnsupported when the plane
// has no rotation property; staged state is untouched in that case.
func (p *Plane) SetRotation(r Rotation) error {
	if p.rotationProp == 0 {
		return fmt.Errorf("rotation on %s: %w", p.object(), ErrUnsupported)
	}
	p.rotation = r
	p.dirty.Rotation = true
	return nil
}
