package serial

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// Ioctl request numbers. Trimmed to the subset OpenAN851, GetAttr/SetAttr,
// and the PTY test harness actually issue; the legacy serial_struct,
// RS485, modem-line, and break/flow-control requests the teacher's goserial
// carries have no caller in this module.
var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)

	tiocswinsz = uintptr(0x5414)
	tiocgwinsz = uintptr(0x5413)

	tiocgptn   = ioctl.IOR('T', 0x30, unsafe.Sizeof(uint32(0)))
	tiocsptlck = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
)
