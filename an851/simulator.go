package an851

import (
	"time"

	"github.com/daedaluz/rigel/serial"
)

// deviceIDAddress mirrors device.DeviceIDAddress. Duplicated here (rather
// than imported) since device already imports an851.
const deviceIDAddress = 0x3FFFFE

// Simulator is an in-process stand-in for a real AN851 bootloader. Tests
// across this module hand it the slave end of a serial.OpenPTY pair and
// run Serve in a goroutine; the package under test talks to the master end
// exactly as it would a real device.
type Simulator struct {
	Port *serial.Port

	Version  uint16
	DeviceID uint16

	Flash  []byte // indexed by absolute flash address
	EEPROM []byte
	Config []byte // 7 configuration register bytes

	EraseByte byte // 0xFF standard, 0x00 IFI
	IFI       bool // whether IFI_WR_ROW/IFI_RUN_CODE are honored

	// RanUserCode and SawReset record whether the corresponding
	// fire-and-forget commands were observed, for end-to-end assertions.
	RanUserCode bool
	SawReset    bool

	// DropNextWrite, when set, acknowledges the next CmdWriteFlash as
	// usual but discards the data, simulating a write that silently
	// failed to take. It is cleared after one use. For exercising
	// verify-on-write failure paths.
	DropNextWrite bool

	stop chan struct{}
}

// NewSimulator returns a Simulator with flash pre-filled with the given
// erase byte and sized to capacity.
func NewSimulator(port *serial.Port, capacity int, eraseByte byte) *Simulator {
	flash := make([]byte, capacity)
	for i := range flash {
		flash[i] = eraseByte
	}
	return &Simulator{
		Port:      port,
		EraseByte: eraseByte,
		Flash:     flash,
		EEPROM:    make([]byte, 1024),
		Config:    make([]byte, 7),
		stop:      make(chan struct{}),
	}
}

// Stop terminates a running Serve loop.
func (s *Simulator) Stop() {
	close(s.stop)
}

// Serve reads and answers frames until Stop is called or a read error
// occurs. It is meant to run in its own goroutine for the lifetime of a
// test.
func (s *Simulator) Serve() {
	buf := make([]byte, MaxPacketSize*2)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		n, err := s.Port.ReadTimeout(buf, 50*time.Millisecond)
		if err != nil || n == 0 {
			continue
		}
		for !(buf[n-1] == ETX && (n < 2 || buf[n-2] != DLE)) {
			m, err := s.Port.ReadTimeout(buf[n:], 50*time.Millisecond)
			if err != nil {
				break
			}
			if m == 0 {
				break
			}
			n += m
		}
		cmd, payload, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		reply, ok := s.handle(cmd, payload)
		if !ok {
			continue
		}
		s.Port.WriteAll(Encode(cmd, reply))
	}
}

func (s *Simulator) handle(cmd Command, payload []byte) (reply []byte, ok bool) {
	switch cmd {
	case CmdReadVersion:
		return []byte{2, byte(s.Version >> 8), byte(s.Version)}, true
	case CmdReadFlash:
		length, addr := payload[0], address(payload[1], payload[2], payload[3])
		var data []byte
		if addr == deviceIDAddress {
			idBytes := []byte{byte(s.DeviceID), byte(s.DeviceID >> 8)}
			data = s.readRegion(idBytes, 0, length)
		} else {
			data = s.readRegion(s.Flash, addr, length)
		}
		return append([]byte{length, payload[1], payload[2], payload[3]}, data...), true
	case CmdReadEEPROM:
		length, addr := payload[0], address(payload[1], payload[2], payload[3])
		data := s.readRegion(s.EEPROM, addr, length)
		return append([]byte{length, payload[1], payload[2], payload[3]}, data...), true
	case CmdReadConfig:
		// The config address space (0x300000 and up) is sparse; only the
		// low byte distinguishes the handful of registers this simulator
		// models, so it alone indexes s.Config.
		length, addr := payload[0], uint32(payload[1])
		data := s.readRegion(s.Config, addr, length)
		return append([]byte{length, payload[1], payload[2], payload[3]}, data...), true
	case CmdWriteFlash:
		blocks := payload[0]
		addr := address(payload[1], payload[2], payload[3])
		data := payload[4:]
		_ = blocks
		if s.DropNextWrite {
			s.DropNextWrite = false
		} else {
			s.writeRegion(s.Flash, addr, data)
		}
		return nil, true
	case CmdWriteEEPROM:
		length := payload[0]
		addr := address(payload[1], payload[2], 0)
		data := payload[4 : 4+int(length)]
		s.writeRegion(s.EEPROM, addr, data)
		if addr == uint32(len(s.EEPROM)-1) || (len(data) > 0 && data[len(data)-1] != 0xFF) {
			// writing a non-erase byte to the last EEPROM byte is the
			// standard-device exit signal; nothing to simulate beyond
			// recording the write itself.
		}
		return nil, true
	case CmdWriteConfig:
		length := payload[0]
		addr := payload[1]
		data := payload[4 : 4+int(length)]
		s.writeRegion(s.Config, uint32(addr)&0xFF, data)
		return nil, true
	case CmdEraseFlash:
		rows := payload[0]
		addr := address(payload[1], payload[2], payload[3])
		n := int(rows) * 64
		if n == 0 {
			n = 255 * 64
		}
		for i := 0; i < n && int(addr)+i < len(s.Flash); i++ {
			s.Flash[int(addr)+i] = s.EraseByte
		}
		return nil, true
	case CmdIFIWriteRow:
		if !s.IFI {
			return nil, false
		}
		addr := address(payload[1], payload[2], payload[3])
		val := payload[4]
		for i := 0; i < 64 && int(addr)+i < len(s.Flash); i++ {
			s.Flash[int(addr)+i] = val
		}
		return payload, true
	case CmdIFIRun:
		s.RanUserCode = true
		return nil, true
	case CmdReset:
		s.SawReset = true
		return nil, true
	default:
		return nil, false
	}
}

func (s *Simulator) readRegion(region []byte, addr uint32, length byte) []byte {
	out := make([]byte, length)
	for i := range out {
		if int(addr)+i < len(region) {
			out[i] = region[int(addr)+i]
		}
	}
	return out
}

func (s *Simulator) writeRegion(region []byte, addr uint32, data []byte) {
	for i, b := range data {
		if int(addr)+i < len(region) {
			region[int(addr)+i] = b
		}
	}
}
