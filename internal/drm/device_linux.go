//go:build linux

package drm

import (
	"bytes"
	"fmt"
	"os"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/coreman2200/funtimes-kmslab/internal/kms"
)

// ioctl code assembly, linux generic layout: dir<<30 | size<<16 | 'd'<<8 | nr.
const (
	iocWrite = 1
	iocRead  = 2
	iocBase  = 'd'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | iocBase<<8 | nr
}

// request numbers from the kernel UAPI
var (
	reqResources    = ioc(iocRead|iocWrite, 0xA0, unsafe.Sizeof(sysResources{}))
	reqSetCRTC      = ioc(iocRead|iocWrite, 0xA2, unsafe.Sizeof(sysCRTC{}))
	reqCursor       = ioc(iocRead|iocWrite, 0xA3, unsafe.Sizeof(sysCursor{}))
	reqGetEncoder   = ioc(iocRead|iocWrite, 0xA6, unsafe.Sizeof(sysGetEncoder{}))
	reqGetConnector = ioc(iocRead|iocWrite, 0xA7, unsafe.Sizeof(sysGetConnector{}))
	reqGetProperty  = ioc(iocRead|iocWrite, 0xAA, unsafe.Sizeof(sysGetProperty{}))
	reqRmFB         = ioc(iocRead|iocWrite, 0xAF, unsafe.Sizeof(uint32(0)))
	reqCreateDumb   = ioc(iocRead|iocWrite, 0xB2, unsafe.Sizeof(sysCreateDumb{}))
	reqMapDumb      = ioc(iocRead|iocWrite, 0xB3, unsafe.Sizeof(sysMapDumb{}))
	reqDestroyDumb  = ioc(iocRead|iocWrite, 0xB4, unsafe.Sizeof(sysDestroyDumb{}))
	reqPlaneRes     = ioc(iocRead|iocWrite, 0xB5, unsafe.Sizeof(sysGetPlaneRes{}))
	reqGetPlane     = ioc(iocRead|iocWrite, 0xB6, unsafe.Sizeof(sysGetPlane{}))
	reqSetPlane     = ioc(iocRead|iocWrite, 0xB7, unsafe.Sizeof(sysSetPlane{}))
	reqAddFB2       = ioc(iocRead|iocWrite, 0xB8, unsafe.Sizeof(sysFBCmd2{}))
	reqObjGetProps  = ioc(iocRead|iocWrite, 0xB9, unsafe.Sizeof(sysObjGetProps{}))
	reqObjSetProp   = ioc(iocRead|iocWrite, 0xBA, unsafe.Sizeof(sysObjSetProp{}))
	reqSetClientCap = ioc(iocWrite, 0x0D, unsafe.Sizeof(sysSetClientCap{}))
)

const (
	clientCapUniversalPlanes = 2

	connStatusConnected = 1

	modeTypePreferred = 1 << 3
	modeNameLen       = 32
	propNameLen       = 32

	cursorFlagBO   = 0x01
	cursorFlagMove = 0x02
)

// raw UAPI struct layouts

type sysResources struct {
	fbIDPtr              uint64
	crtcIDPtr            uint64
	connectorIDPtr       uint64
	encoderIDPtr         uint64
	countFBs             uint32
	countCRTCs           uint32
	countConnectors      uint32
	countEncoders        uint32
	minWidth, maxWidth   uint32
	minHeight, maxHeight uint32
}

type sysModeInfo struct {
	clock uint32

	hdisplay, hsyncStart, hsyncEnd, htotal, hskew uint16
	vdisplay, vsyncStart, vsyncEnd, vtotal, vscan uint16

	vrefresh uint32
	flags    uint32
	typ      uint32
	name     [modeNameLen]uint8
}

type sysGetConnector struct {
	encodersPtr   uint64
	modesPtr      uint64
	propsPtr      uint64
	propValuesPtr uint64

	countModes    uint32
	countProps    uint32
	countEncoders uint32

	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32

	connection        uint32
	mmWidth, mmHeight uint32
	subpixel          uint32
}

type sysGetEncoder struct {
	id             uint32
	typ            uint32
	crtcID         uint32
	possibleCRTCs  uint32
	possibleClones uint32
}

type sysGetPlaneRes struct {
	planeIDPtr  uint64
	countPlanes uint32
}

type sysGetPlane struct {
	planeID       uint32
	crtcID        uint32
	fbID          uint32
	possibleCRTCs uint32
	gammaSize     uint32
	countFormats  uint32
	formatPtr     uint64
}

type sysSetPlane struct {
	planeID uint32
	crtcID  uint32
	fbID    uint32
	flags   uint32
	crtcX   int32
	crtcY   int32
	crtcW   uint32
	crtcH   uint32
	srcX    uint32
	srcY    uint32
	srcH    uint32
	srcW    uint32
}

type sysCRTC struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	id               uint32
	fbID             uint32
	x, y             uint32
	gammaSize        uint32
	modeValid        uint32
	mode             sysModeInfo
}

type sysCursor struct {
	flags         uint32
	crtcID        uint32
	x, y          int32
	width, height uint32
	handle        uint32
}

type sysGetProperty struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [propNameLen]uint8
	countValues    uint32
	countEnumBlobs uint32
}

type sysObjGetProps struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
}

type sysObjSetProp struct {
	value   uint64
	propID  uint32
	objID   uint32
	objType uint32
}

type sysSetClientCap struct {
	capability uint64
	value      uint64
}

type sysCreateDumb struct {
	height, width uint32
	bpp           uint32
	flags         uint32
	handle        uint32
	pitch         uint32
	size          uint64
}

type sysMapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type sysDestroyDumb struct {
	handle uint32
}

type sysFBCmd2 struct {
	fbID          uint32
	width, height uint32
	pixelFormat   uint32
	flags         uint32
	handles       [4]uint32
	pitches       [4]uint32
	offsets       [4]uint32
	modifier      [4]uint64
}

// surfaceInfo is what SetCursor needs to translate an fb id back into the
// GEM handle the cursor ioctl wants.
type surfaceInfo struct {
	handle uint32
	width  uint32
	height uint32
}

// Device is an open DRM card node implementing kms.Backend.
type Device struct {
	f        *os.File
	path     string
	surfaces map[uint32]surfaceInfo // fb id -> backing buffer
}

var _ kms.Backend = (*Device)(nil)

// Open opens the card node and requests universal plane visibility. A
// kernel too old for the client cap still opens fine; plane enumeration
// then reports nothing and the legacy model applies.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("drm: open %s: %w", path, err)
	}
	d := &Device{f: f, path: path, surfaces: map[uint32]surfaceInfo{}}

	cc := sysSetClientCap{capability: clientCapUniversalPlanes, value: 1}
	if err := d.ioctl(reqSetClientCap, unsafe.Pointer(&cc)); err != nil {
		log.Debug().Err(err).Str("device", path).Msg("universal planes cap rejected")
	}
	log.Debug().Str("device", path).Msg("drm device opened")
	return d, nil
}

func (d *Device) Path() string { return d.path }

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		return errno
	}
}

// Discover enumerates CRTCs, connectors, encoders and planes. Count
// queries run twice per object class: first for sizes, then for ids.
func (d *Device) Discover() (*kms.Resources, error) {
	var mres sysResources
	if err := d.ioctl(reqResources, unsafe.Pointer(&mres)); err != nil {
		return nil, fmt.Errorf("drm: resources: %w", err)
	}

	var crtcs, connIDs, encIDs []uint32
	if mres.countCRTCs > 0 {
		crtcs = make([]uint32, mres.countCRTCs)
		mres.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	}
	if mres.countConnectors > 0 {
		connIDs = make([]uint32, mres.countConnectors)
		mres.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&connIDs[0])))
	}
	if mres.countEncoders > 0 {
		encIDs = make([]uint32, mres.countEncoders)
		mres.encoderIDPtr = uint64(uintptr(unsafe.Pointer(&encIDs[0])))
	}
	mres.countFBs = 0
	if err := d.ioctl(reqResources, unsafe.Pointer(&mres)); err != nil {
		return nil, fmt.Errorf("drm: resources: %w", err)
	}

	res := &kms.Resources{CRTCs: crtcs}

	for _, id := range connIDs {
		conn, err := d.getConnector(id)
		if err != nil {
			return nil, fmt.Errorf("drm: connector %d: %w", id, err)
		}
		res.Connectors = append(res.Connectors, conn)
	}
	for _, id := range encIDs {
		var enc sysGetEncoder
		enc.id = id
		if err := d.ioctl(reqGetEncoder, unsafe.Pointer(&enc)); err != nil {
			return nil, fmt.Errorf("drm: encoder %d: %w", id, err)
		}
		res.Encoders = append(res.Encoders, kms.EncoderInfo{
			ID:            enc.id,
			PossibleCRTCs: enc.possibleCRTCs,
		})
	}

	planes, err := d.getPlanes()
	if err != nil {
		return nil, fmt.Errorf("drm: planes: %w", err)
	}
	res.Planes = planes

	log.Debug().
		Int("crtcs", len(res.CRTCs)).
		Int("connectors", len(res.Connectors)).
		Int("planes", len(res.Planes)).
		Msg("drm topology enumerated")
	return res, nil
}

func (d *Device) getConnector(id uint32) (kms.ConnectorInfo, error) {
	var conn sysGetConnector
	conn.connectorID = id
	if err := d.ioctl(reqGetConnector, unsafe.Pointer(&conn)); err != nil {
		return kms.ConnectorInfo{}, err
	}

	var (
		encoders []uint32
		modes    []sysModeInfo
	)
	if conn.countModes == 0 {
		conn.countModes = 1
	}
	modes = make([]sysModeInfo, conn.countModes)
	conn.modesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
	if conn.countEncoders > 0 {
		encoders = make([]uint32, conn.countEncoders)
		conn.encodersPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}
	conn.countProps = 0
	if err := d.ioctl(reqGetConnector, unsafe.Pointer(&conn)); err != nil {
		return kms.ConnectorInfo{}, err
	}

	info := kms.ConnectorInfo{
		ID:        conn.connectorID,
		Name:      ConnectorName(conn.connectorType, conn.connectorTypeID),
		Connected: conn.connection == connStatusConnected,
		Encoders:  encoders,
	}
	if info.Connected {
		for i := uint32(0); i < conn.countModes && int(i) < len(modes); i++ {
			info.Modes = append(info.Modes, toMode(modes[i]))
		}
	}
	return info, nil
}

func (d *Device) getPlanes() ([]kms.PlaneInfo, error) {
	var pres sysGetPlaneRes
	if err := d.ioctl(reqPlaneRes, unsafe.Pointer(&pres)); err != nil {
		// no plane API at all: legacy model
		return nil, nil
	}
	if pres.countPlanes == 0 {
		return nil, nil
	}
	ids := make([]uint32, pres.countPlanes)
	pres.planeIDPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	if err := d.ioctl(reqPlaneRes, unsafe.Pointer(&pres)); err != nil {
		return nil, err
	}

	var planes []kms.PlaneInfo
	for _, id := range ids {
		var pl sysGetPlane
		pl.planeID = id
		if err := d.ioctl(reqGetPlane, unsafe.Pointer(&pl)); err != nil {
			return nil, err
		}
		planes = append(planes, kms.PlaneInfo{ID: pl.planeID, PossibleCRTCs: pl.possibleCRTCs})
	}
	return planes, nil
}

func (d *Device) SetCRTC(req kms.CRTCRequest) error {
	var crtc sysCRTC
	crtc.id = req.CRTC
	crtc.fbID = req.FB
	crtc.x, crtc.y = req.X, req.Y
	if len(req.Connectors) > 0 {
		crtc.setConnectorsPtr = uint64(uintptr(unsafe.Pointer(&req.Connectors[0])))
		crtc.countConnectors = uint32(len(req.Connectors))
	}
	if req.Mode != nil {
		crtc.mode = fromMode(*req.Mode)
		crtc.modeValid = 1
	}
	return d.ioctl(reqSetCRTC, unsafe.Pointer(&crtc))
}

func (d *Device) SetPlane(req kms.PlaneRequest) error {
	sp := sysSetPlane{
		planeID: req.Plane,
		crtcID:  req.CRTC,
		fbID:    req.FB,
		crtcX:   req.CrtcX,
		crtcY:   req.CrtcY,
		crtcW:   req.CrtcW,
		crtcH:   req.CrtcH,
		srcX:    req.SrcX,
		srcY:    req.SrcY,
		srcW:    req.SrcW,
		srcH:    req.SrcH,
	}
	return d.ioctl(reqSetPlane, unsafe.Pointer(&sp))
}

// SetCursor resolves the fb id to its GEM handle, then issues the buffer
// and move calls the legacy cursor API splits the update into.
func (d *Device) SetCursor(crtc uint32, fb uint32, x, y int32) error {
	bo := sysCursor{flags: cursorFlagBO, crtcID: crtc}
	if fb != 0 {
		s, ok := d.surfaces[fb]
		if !ok {
			return fmt.Errorf("drm: cursor fb %d was not created on this device", fb)
		}
		bo.handle = s.handle
		bo.width, bo.height = s.width, s.height
	}
	if err := d.ioctl(reqCursor, unsafe.Pointer(&bo)); err != nil {
		return err
	}
	if fb == 0 {
		return nil
	}
	move := sysCursor{flags: cursorFlagMove, crtcID: crtc, x: x, y: y}
	return d.ioctl(reqCursor, unsafe.Pointer(&move))
}

// GetProperty walks the object's property list looking for name. The
// per-property metadata query carries the name inline, so one extra ioctl
// per candidate property suffices.
func (d *Device) GetProperty(objectID, objectType uint32, name string) (uint32, uint64, bool, error) {
	var ogp sysObjGetProps
	ogp.objID = objectID
	ogp.objType = objectType
	if err := d.ioctl(reqObjGetProps, unsafe.Pointer(&ogp)); err != nil {
		return 0, 0, false, fmt.Errorf("drm: properties of object %d: %w", objectID, err)
	}
	if ogp.countProps == 0 {
		return 0, 0, false, nil
	}
	ids := make([]uint32, ogp.countProps)
	values := make([]uint64, ogp.countProps)
	ogp.propsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	ogp.propValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	if err := d.ioctl(reqObjGetProps, unsafe.Pointer(&ogp)); err != nil {
		return 0, 0, false, fmt.Errorf("drm: properties of object %d: %w", objectID, err)
	}

	for i, id := range ids {
		var gp sysGetProperty
		gp.propID = id
		if err := d.ioctl(reqGetProperty, unsafe.Pointer(&gp)); err != nil {
			return 0, 0, false, fmt.Errorf("drm: property %d: %w", id, err)
		}
		n, _, _ := bytes.Cut(gp.name[:], []byte{0})
		if string(n) == name {
			return id, values[i], true, nil
		}
	}
	return 0, 0, false, nil
}

func (d *Device) SetProperty(objectID, objectType uint32, propID uint32, value uint64) error {
	osp := sysObjSetProp{
		value:   value,
		propID:  propID,
		objID:   objectID,
		objType: objectType,
	}
	return d.ioctl(reqObjSetProp, unsafe.Pointer(&osp))
}

// Surface is a mapped dumb buffer registered as a framebuffer. Pix is the
// live mapping; writes land in scanout memory directly.
type Surface struct {
	ID     uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Pix    []byte

	dev    *Device
	handle uint32
}

// Framebuffer returns the engine-facing reference for this surface.
func (s *Surface) Framebuffer() *kms.Framebuffer {
	return &kms.Framebuffer{ID: s.ID, Width: s.Width, Height: s.Height}
}

// CreateSurface allocates a 32bpp dumb buffer, maps it, and registers it
// with the given pixel format.
func (d *Device) CreateSurface(width, height uint32, format uint32) (*Surface, error) {
	cd := sysCreateDumb{width: width, height: height, bpp: 32}
	if err := d.ioctl(reqCreateDumb, unsafe.Pointer(&cd)); err != nil {
		return nil, fmt.Errorf("drm: create dumb %dx%d: %w", width, height, err)
	}

	destroy := func() {
		dd := sysDestroyDumb{handle: cd.handle}
		_ = d.ioctl(reqDestroyDumb, unsafe.Pointer(&dd))
	}

	md := sysMapDumb{handle: cd.handle}
	if err := d.ioctl(reqMapDumb, unsafe.Pointer(&md)); err != nil {
		destroy()
		return nil, fmt.Errorf("drm: map dumb: %w", err)
	}
	pix, err := unix.Mmap(int(d.f.Fd()), int64(md.offset), int(cd.size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("drm: mmap dumb: %w", err)
	}

	fc := sysFBCmd2{width: width, height: height, pixelFormat: format}
	fc.handles[0] = cd.handle
	fc.pitches[0] = cd.pitch
	if err := d.ioctl(reqAddFB2, unsafe.Pointer(&fc)); err != nil {
		_ = unix.Munmap(pix)
		destroy()
		return nil, fmt.Errorf("drm: add fb: %w", err)
	}

	s := &Surface{
		ID:     fc.fbID,
		Width:  width,
		Height: height,
		Pitch:  cd.pitch,
		Pix:    pix,
		dev:    d,
		handle: cd.handle,
	}
	d.surfaces[s.ID] = surfaceInfo{handle: cd.handle, width: width, height: height}
	log.Debug().Uint32("fb", s.ID).Uint32("w", width).Uint32("h", height).Msg("surface created")
	return s, nil
}

// Destroy unmaps the surface and releases the framebuffer and its backing
// buffer. Any plane still scanning it out must be reprogrammed first.
func (s *Surface) Destroy() error {
	if s.dev == nil {
		return nil
	}
	delete(s.dev.surfaces, s.ID)
	if s.Pix != nil {
		_ = unix.Munmap(s.Pix)
		s.Pix = nil
	}
	fbID := s.ID
	if err := s.dev.ioctl(reqRmFB, unsafe.Pointer(&fbID)); err != nil {
		return fmt.Errorf("drm: rm fb %d: %w", s.ID, err)
	}
	dd := sysDestroyDumb{handle: s.handle}
	if err := s.dev.ioctl(reqDestroyDumb, unsafe.Pointer(&dd)); err != nil {
		return fmt.Errorf("drm: destroy dumb: %w", err)
	}
	s.dev = nil
	return nil
}

func (d *Device) Close() error {
	return d.f.Close()
}

func toMode(m sysModeInfo) kms.Mode {
	name, _, _ := bytes.Cut(m.name[:], []byte{0})
	return kms.Mode{
		Name:       string(name),
		Clock:      m.clock,
		HDisplay:   m.hdisplay,
		HSyncStart: m.hsyncStart,
		HSyncEnd:   m.hsyncEnd,
		HTotal:     m.htotal,
		VDisplay:   m.vdisplay,
		VSyncStart: m.vsyncStart,
		VSyncEnd:   m.vsyncEnd,
		VTotal:     m.vtotal,
		VRefresh:   m.vrefresh,
		Flags:      m.flags,
		Preferred:  m.typ&modeTypePreferred != 0,
	}
}

func fromMode(m kms.Mode) sysModeInfo {
	out := sysModeInfo{
		clock:      m.Clock,
		hdisplay:   m.HDisplay,
		hsyncStart: m.HSyncStart,
		hsyncEnd:   m.HSyncEnd,
		htotal:     m.HTotal,
		vdisplay:   m.VDisplay,
		vsyncStart: m.VSyncStart,
		vsyncEnd:   m.VSyncEnd,
		vtotal:     m.VTotal,
		vrefresh:   m.VRefresh,
		flags:      m.Flags,
	}
	if m.Preferred {
		out.typ = modeTypePreferred
	}
	copy(out.name[:modeNameLen-1], m.Name)
	return out
}
