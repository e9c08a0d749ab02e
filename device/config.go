package device

import "fmt"

// BlockProtection describes the code/write/table-read protection state of
// one FlashBlockSize-sized region of flash.
type BlockProtection struct {
	Low, High        uint32
	CodeProtected    bool
	WriteProtected   bool
	TableReadProtect bool
}

// ConfigReport summarizes the device's captured configuration registers
// in the same terms the original CLI's configuration printout used:
// per-block flash protection, EEPROM and boot-block protection, and a few
// operating-mode flags. This is diagnostic surface only; it introduces no
// new wire operation.
// ConfigReport derives only from the CONFIG4L/CONFIG5L/CONFIG5H/CONFIG6L
// bytes present in the driver's 7-byte ConfigRegisters capture; the
// configuration-register write-protect bit (CONFIG6H.WRTC) and the
// per-block table-read-protect bits (CONFIG7L) are not captured and so
// are not reported.
type ConfigReport struct {
	Blocks []BlockProtection

	EEPROMCodeProtected    bool
	BootBlockCodeProtected bool

	ExtendedInstructionSet bool
	StackResetEnabled      bool
	DebugEnabled           bool
}

// Describe derives a ConfigReport from the driver's already-captured
// configuration registers. It does not touch the transport.
func (d *Driver) Describe() ConfigReport {
	c4l := d.Config[cfgC4L]
	c5l := d.Config[cfgC5L]
	c5h := d.Config[cfgC5H]
	c6l := d.Config[cfgC6L]

	report := ConfigReport{
		EEPROMCodeProtected:    c5h&bitCPD != 0,
		BootBlockCodeProtected: c5h&bitCPB != 0,
		ExtendedInstructionSet: c4l&bitXINST != 0,
		StackResetEnabled:      c4l&bitSTVREN != 0,
		DebugEnabled:           c4l&bitDEBUG != 0,
	}

	for i := 0; (i+1)*FlashBlockSize-1 <= int(d.Mem.FlashHigh); i++ {
		low := uint32(i * FlashBlockSize)
		if i == 0 {
			low = d.Mem.FlashLow
		}
		high := uint32((i+1)*FlashBlockSize) - 1
		report.Blocks = append(report.Blocks, BlockProtection{
			Low:              low,
			High:             high,
			CodeProtected:    c5l&cpBit(i) != 0,
			WriteProtected:   c6l&wrtBit(i) != 0,
			TableReadProtect: false, // needs CONFIG7L, not in the captured 7 bytes
		})
	}
	return report
}

func (r ConfigReport) String() string {
	s := "Device Memory Protection:\n"
	for i, b := range r.Blocks {
		s += fmt.Sprintf("Flash block %d [%06X-%06X]:", i, b.Low, b.High)
		if b.CodeProtected {
			s += " [CODE]"
		}
		if b.WriteProtected {
			s += " [WRITE]"
		}
		s += "\n"
	}
	return s
}
