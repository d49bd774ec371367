// Package edid builds EDID blocks and forces connector state through the
// kernel's debugfs nodes, so checks can stimulate topologies the attached
// hardware does not provide.
package edid

import "fmt"

// BlockSize is one EDID block.
const BlockSize = 128

// Block is a base EDID block with a valid checksum.
type Block [BlockSize]byte

var headerMagic = [8]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// Timing is the single detailed timing a generated block advertises.
type Timing struct {
	ClockKHz uint32
	HActive  uint16
	HBlank   uint16
	VActive  uint16
	VBlank   uint16
}

// Base returns the stock 1920x1080@60 block.
func Base() Block {
	return New(Timing{ClockKHz: 148500, HActive: 1920, HBlank: 280, VActive: 1080, VBlank: 45}, "KMSLAB BASE")
}

// Alt returns a second block with a distinct preferred mode, for checks
// that need an override observably different from Base.
func Alt() Block {
	return New(Timing{ClockKHz: 121750, HActive: 1400, HBlank: 464, VActive: 1050, VBlank: 39}, "KMSLAB ALT")
}

// New assembles a version 1.3 block carrying one detailed timing and a
// monitor name, checksummed.
func New(t Timing, name string) Block {
	var b Block
	copy(b[:8], headerMagic[:])

	// manufacturer "FTL", three 5-bit letters, big-endian
	b[8], b[9] = packVendor('F', 'T', 'L')
	b[10], b[11] = 0x01, 0x00 // product code
	b[16] = 1                 // week
	b[17] = 30                // year 2020
	b[18], b[19] = 1, 3       // EDID 1.3

	b[20] = 0x80 // digital input
	b[21] = 0x50 // 80cm
	b[22] = 0x2D // 45cm
	b[23] = 0x78 // gamma 2.2
	b[24] = 0x0A // preferred timing in first descriptor

	// no established or standard timings
	for i := 38; i < 54; i += 2 {
		b[i], b[i+1] = 0x01, 0x01
	}

	writeDetailedTiming(b[54:72], t)
	writeNameDescriptor(b[72:90], name)
	// remaining descriptors unused
	b[90+3] = 0x10
	b[108+3] = 0x10

	b[127] = checksum(b[:127])
	return b
}

// Valid reports whether the block carries the EDID magic and sums to zero.
func (b Block) Valid() bool {
	for i, m := range headerMagic {
		if b[i] != m {
			return false
		}
	}
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum == 0
}

// PreferredTiming decodes the first detailed timing descriptor.
func (b Block) PreferredTiming() Timing {
	d := b[54:72]
	return Timing{
		ClockKHz: (uint32(d[0]) | uint32(d[1])<<8) * 10,
		HActive:  uint16(d[2]) | uint16(d[4]>>4)<<8,
		HBlank:   uint16(d[3]) | uint16(d[4]&0x0F)<<8,
		VActive:  uint16(d[5]) | uint16(d[7]>>4)<<8,
		VBlank:   uint16(d[6]) | uint16(d[7]&0x0F)<<8,
	}
}

func (b Block) String() string {
	t := b.PreferredTiming()
	return fmt.Sprintf("edid %dx%d @%d kHz", t.HActive, t.VActive, t.ClockKHz)
}

func packVendor(a, b2, c byte) (byte, byte) {
	v := uint16(a-'A'+1)<<10 | uint16(b2-'A'+1)<<5 | uint16(c-'A'+1)
	return byte(v >> 8), byte(v)
}

func writeDetailedTiming(d []byte, t Timing) {
	clock := t.ClockKHz / 10
	d[0] = byte(clock)
	d[1] = byte(clock >> 8)
	d[2] = byte(t.HActive)
	d[3] = byte(t.HBlank)
	d[4] = byte(t.HActive>>8)<<4 | byte(t.HBlank>>8)&0x0F
	d[5] = byte(t.VActive)
	d[6] = byte(t.VBlank)
	d[7] = byte(t.VActive>>8)<<4 | byte(t.VBlank>>8)&0x0F
	d[8] = 88      // hsync offset
	d[9] = 44      // hsync width
	d[10] = 4<<4 | 5 // vsync offset / width
	d[17] = 0x1E   // digital separate sync, +h +v
}

func writeNameDescriptor(d []byte, name string) {
	d[3] = 0xFC
	if len(name) > 13 {
		name = name[:13]
	}
	copy(d[5:], name)
	pad := d[5+len(name):]
	if len(name) < 13 {
		pad[0] = 0x0A
		for i := 1; i < len(pad); i++ {
			pad[i] = ' '
		}
	}
}

func checksum(data []byte) byte {
	var sum byte
	for _, v := range data {
		sum += v
	}
	return -sum
}
