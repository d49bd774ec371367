// Package drm talks to the kernel mode-setting API of a /dev/dri card
// node. It implements the engine's backend contract over raw ioctls and
// owns dumb-buffer scanout surfaces.
package drm

import "fmt"

// DefaultDevice is the card node opened when no path is configured.
const DefaultDevice = "/dev/dri/card0"

// FourCC packs a pixel format code the way the kernel expects it.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats for dumb-buffer scanout. 32bpp, little-endian.
var (
	FormatXRGB8888 = FourCC('X', 'R', '2', '4')
	FormatARGB8888 = FourCC('A', 'R', '2', '4')
)

// connectorTypeNames maps the kernel connector type enum to the userspace
// naming convention ("HDMI-A-1", "eDP-1", ...).
var connectorTypeNames = []string{
	"Unknown",
	"VGA",
	"DVI-I",
	"DVI-D",
	"DVI-A",
	"Composite",
	"SVIDEO",
	"LVDS",
	"Component",
	"DIN",
	"DP",
	"HDMI-A",
	"HDMI-B",
	"TV",
	"eDP",
	"Virtual",
	"DSI",
	"DPI",
	"Writeback",
	"SPI",
	"USB",
}

// ConnectorName renders the conventional connector name for a kernel
// connector type and per-type index.
func ConnectorName(connType, typeID uint32) string {
	name := "Unknown"
	if int(connType) < len(connectorTypeNames) {
		name = connectorTypeNames[connType]
	}
	return fmt.Sprintf("%s-%d", name, typeID)
}
