// Package device implements the AN851 device driver: geometry lookup,
// connect/identify, chunked flash/EEPROM operations, IFI-extension
// detection, and the standard vs. IFI run-user-code exit sequence.
package device

import (
	"time"

	"github.com/daedaluz/rigel/an851"
	"github.com/daedaluz/rigel/serial"
)

// Memory geometry constants, in bytes.
const (
	BytesPerBlock    = 8
	BytesPerRow      = 64
	FlashBlockSize   = 0x4000
	DeviceIDAddress  = 0x3FFFFE
	DeviceBufferSize = 256
)

// Layout is the device's declared memory regions.
type Layout struct {
	FlashLow, FlashHigh   uint32
	EEPROMLow, EEPROMHigh uint32
	ConfigLow, ConfigHigh uint32
}

// Geometry is one candidate device descriptor in a GeometryTable.
type Geometry struct {
	DevID   uint16
	Name    string
	Mem     Layout
	RLag    time.Duration // per-byte read timeout multiplier
	WLag    time.Duration // per-byte write timeout multiplier
	MaxPacketSize uint8
	VerifyOnWrite bool
}

// GeometryTable is a caller-supplied list of candidate geometries, matched
// against a device's reported ID by request_id & candidate_id != 0.
type GeometryTable []Geometry

func (t GeometryTable) lookup(id uint16) (Geometry, bool) {
	for _, g := range t {
		if id&g.DevID != 0 {
			return g, true
		}
	}
	return Geometry{}, false
}

// ConfigRegisters holds the seven configuration-register bytes captured at
// connect. Index 0 (CONFIG1L) always reads zero on this device family;
// CONFIG4H is not among the captured bytes. The indices are named by the
// cfg* constants below; Describe reads CONFIG4L, CONFIG5L, CONFIG5H and
// CONFIG6L.
type ConfigRegisters [7]byte

const (
	cfgC1L = iota // reserved, always zero
	cfgC2L
	cfgC3L
	cfgC4L
	cfgC5L
	cfgC5H
	cfgC6L
)

// CONFIG4L bit masks.
const (
	bitDEBUG  = 0x80
	bitXINST  = 0x40
	bitBBSIZ  = 0x30
	bitSTVREN = 0x01
)

// CONFIG5H bit masks.
const (
	bitCPD = 0x80
	bitCPB = 0x40
)

func cpBit(i int) byte   { return 0x01 << uint(i) }
func wrtBit(i int) byte  { return 0x01 << uint(i) }

// Driver is a connected AN851 device: its selected geometry, an engine
// tuned to that geometry's timing, the captured configuration registers,
// and a reusable scratch buffer for alignment padding.
type Driver struct {
	Engine *an851.Engine
	Geometry
	Config      ConfigRegisters
	IsIFI       bool
	DeviceID    uint16
	BootVersion uint16
	connected   bool

	// Progress, if set, is invoked at each chunk boundary of a long
	// operation and once more with current==total at the end.
	Progress func(current, total uint32)

	scratch [DeviceBufferSize]byte
}

func addrBytes(addr uint32) (l, h, u byte) {
	return byte(addr), byte(addr >> 8), byte(addr >> 16)
}

func (d *Driver) report(current, total uint32) {
	if d.Progress != nil {
		d.Progress(current, total)
	}
}

// eraseByte is the value a freshly erased flash cell reads back as: 0xFF
// on standard devices, 0x00 on IFI devices (which erase by writing rows of
// zero instead of issuing a genuine erase command).
func (d *Driver) eraseByte() byte {
	return d.EraseByte()
}

// EraseByte reports the value a freshly erased flash cell reads back as:
// 0xFF on standard devices, 0x00 on IFI devices (which erase by writing
// rows of zero instead of issuing a genuine erase command).
func (d *Driver) EraseByte() byte {
	if d.IsIFI {
		return 0x00
	}
	return 0xFF
}
