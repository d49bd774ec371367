package kms

// DRM object types, as reported to property lookups.
const (
	ObjectCRTC      uint32 = 0xcccccccc
	ObjectConnector uint32 = 0xc0c0c0c0
	ObjectEncoder   uint32 = 0xe0e0e0e0
	ObjectPlane     uint32 = 0xeeeeeeee
)

// Values of the "type" plane property.
const (
	PlaneTypeOverlay uint64 = 0
	PlaneTypePrimary uint64 = 1
	PlaneTypeCursor  uint64 = 2
)

// Mode is one display timing advertised by a connector.
type Mode struct {
	Name  string
	Clock uint32

	HDisplay, HSyncStart, HSyncEnd, HTotal uint16
	VDisplay, VSyncStart, VSyncEnd, VTotal uint16

	VRefresh  uint32
	Flags     uint32
	Preferred bool
}

// ConnectorInfo describes one physical connector as discovered.
type ConnectorInfo struct {
	ID        uint32
	Name      string // e.g. "HDMI-A-1"
	Connected bool
	Modes     []Mode
	Encoders  []uint32 // candidate encoder ids, in reported order
}

// EncoderInfo describes an encoder and which pipes can feed it.
type EncoderInfo struct {
	ID            uint32
	PossibleCRTCs uint32 // bitmask over CRTC indices
}

// PlaneInfo describes a hardware plane and which pipes can scan it out.
type PlaneInfo struct {
	ID            uint32
	PossibleCRTCs uint32
}

// Resources is the raw topology reported by a backend in one discovery pass.
// An empty Planes slice means the device exposes no individually addressable
// planes and the legacy primary+cursor model applies.
type Resources struct {
	CRTCs      []uint32
	Connectors []ConnectorInfo
	Encoders   []EncoderInfo
	Planes     []PlaneInfo
}

// Framebuffer is a non-owning reference to a scanout buffer produced by a
// surface provider. The engine forwards the id and geometry only; the
// creator owns the buffer and must outlive any plane still referencing it.
type Framebuffer struct {
	ID     uint32
	Width  uint32
	Height uint32
}

// CRTCRequest programs a pipe. A zero FB with a nil Mode disables it.
type CRTCRequest struct {
	CRTC       uint32
	FB         uint32
	X, Y       uint32 // panning offset into the fb
	Mode       *Mode
	Connectors []uint32
}

// PlaneRequest programs one plane. Src coordinates are 16.16 fixed point.
// A zero FB detaches the plane from its CRTC.
type PlaneRequest struct {
	Plane        uint32
	CRTC         uint32
	FB           uint32
	CrtcX, CrtcY int32
	CrtcW, CrtcH uint32
	SrcX, SrcY   uint32
	SrcW, SrcH   uint32
}

// Backend abstracts the mode-setting transport (real DRM ioctls, or a fake
// for headless runs). Calls block until the hardware answers; the engine
// never retries a failed call.
type Backend interface {
	// Discover enumerates the hardware topology. Called once per Display.
	Discover() (*Resources, error)

	SetCRTC(req CRTCRequest) error
	SetPlane(req PlaneRequest) error

	// SetCursor programs the legacy cursor of a pipe: buffer and position
	// in one call. A zero fb hides the cursor.
	SetCursor(crtc uint32, fb uint32, x, y int32) error

	// GetProperty finds a property by name on an object. ok is false when
	// the object has no such property; err reports transport failures only.
	GetProperty(objectID, objectType uint32, name string) (id uint32, value uint64, ok bool, err error)

	SetProperty(objectID, objectType uint32, propID uint32, value uint64) error

	Close() error
}
