package an851

import (
	"time"

	"github.com/daedaluz/rigel/serial"
	"zappem.net/pub/debug/xxd"
)

// Engine drives the single-threaded AN851 request/reply state machine over
// a serial.Port: encode, write, await a framed reply, validate it, retry a
// bounded number of times.
type Engine struct {
	Port *serial.Port

	// RLag and WLag are the per-byte read/write timeout multipliers (an
	// an851_safe_init's rlag/wlag), applied as RLag*expectedBytes or
	// WLag*expectedBytes to derive the read deadline for a given command.
	RLag, WLag time.Duration
	// ResetLag is the settle delay observed after sending CmdReset.
	ResetLag time.Duration
	// MaxRetries bounds the number of re-sends after the first attempt;
	// the default of 3 gives four attempts total.
	MaxRetries int
	// Trace, when set, hex-dumps every frame written and every frame
	// successfully read to stdout. Off by default.
	Trace bool

	lastCmd Command
}

// NewEngine returns an Engine with the generous default timings an851
// uses before a device's own geometry-specific lags are known.
func NewEngine(port *serial.Port) *Engine {
	return &Engine{
		Port:       port,
		RLag:       2 * time.Millisecond,
		WLag:       5 * time.Millisecond,
		ResetLag:   time.Second,
		MaxRetries: 3,
	}
}

func address(l, h, u byte) uint32 {
	return uint32(l) | uint32(h)<<8 | uint32(u)<<16
}

func isReadCmd(cmd Command) bool {
	switch cmd {
	case CmdReadFlash, CmdReadEEPROM, CmdReadConfig, CmdReadVersion:
		return true
	default:
		return false
	}
}

// readRequestShape extracts the length/address an851_rd-family request
// asserts from its own payload, so the reply can be checked against it.
// CmdReadVersion carries a length but no address.
func readRequestShape(cmd Command, payload []byte) (length byte, addr uint32, hasAddr bool) {
	switch cmd {
	case CmdReadFlash, CmdReadEEPROM, CmdReadConfig:
		if len(payload) < 4 {
			return 0, 0, false
		}
		return payload[0], address(payload[1], payload[2], payload[3]), true
	case CmdReadVersion:
		if len(payload) < 1 {
			return 0, 0, false
		}
		return payload[0], 0, false
	default:
		return 0, 0, false
	}
}

func (e *Engine) readTimeout(cmd Command, expectReply int) time.Duration {
	switch cmd {
	case CmdEraseFlash:
		return e.WLag * 255
	case CmdWriteFlash, CmdWriteEEPROM, CmdWriteConfig, CmdIFIWriteRow:
		return e.WLag * time.Duration(expectReply)
	default:
		return e.RLag * time.Duration(expectReply)
	}
}

// Do issues one request and returns its validated reply payload (the data
// proper, with any echoed length/address and the trailing checksum byte
// already stripped). expectReply is the number of bytes the caller expects
// back, used only to scale the read timeout.
//
// CmdReset and CmdIFIRun return immediately after the write, with a nil
// reply; Do sleeps ResetLag after CmdReset before returning.
func (e *Engine) Do(cmd Command, payload []byte, expectReply int) ([]byte, error) {
	e.lastCmd = cmd
	frame := Encode(cmd, payload)
	if len(frame) > MaxPacketSize {
		return nil, FramingError{Detail: "encoded frame exceeds maximum packet size"}
	}

	var lastErr error
	attempts := e.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if e.Trace {
			xxd.Print(0, frame)
		}
		if _, err := e.Port.WriteAll(frame); err != nil {
			lastErr = IOError{Op: "write", Err: err}
			if retryable(lastErr) {
				continue
			}
			return nil, lastErr
		}
		if isFireAndForget(cmd) {
			if cmd == CmdReset {
				serial.SleepMicroseconds(int(e.ResetLag / time.Microsecond))
			}
			return nil, nil
		}

		timeout := e.readTimeout(cmd, expectReply)
		raw, err := e.waitResponse(timeout)
		if err != nil {
			lastErr = err
			if retryable(lastErr) {
				continue
			}
			return nil, lastErr
		}
		if e.Trace {
			xxd.Print(0, raw)
		}
		replyCmd, replyPayload, err := Decode(raw)
		if err != nil {
			lastErr = err
			if retryable(lastErr) {
				continue
			}
			return nil, lastErr
		}

		if replyCmd != cmd {
			return nil, EchoMismatchError{Sent: cmd, Got: replyCmd}
		}
		if isWriteAck(cmd) {
			return nil, nil
		}
		if isReadCmd(cmd) {
			reqLen, reqAddr, hasAddr := readRequestShape(cmd, payload)
			if len(replyPayload) < 1 || replyPayload[0] != reqLen {
				return nil, ResponseShapeError{Detail: "echoed length does not match request"}
			}
			if hasAddr {
				if len(replyPayload) < 4 {
					return nil, ResponseShapeError{Detail: "reply too short for echoed address"}
				}
				gotAddr := address(replyPayload[1], replyPayload[2], replyPayload[3])
				if gotAddr != reqAddr {
					return nil, ResponseShapeError{Detail: "echoed address does not match request"}
				}
				return replyPayload[4:], nil
			}
			return replyPayload[1:], nil
		}
		return replyPayload, nil
	}
	return nil, lastErr
}

// waitResponse reads until a terminator frame is seen or two successive
// reads each return zero bytes, at which point the reply is declared
// lost (TimeoutError).
func (e *Engine) waitResponse(timeout time.Duration) ([]byte, error) {
	buf := make([]byte, MaxPacketSize*2)
	n, misses := 0, 0
	for n == 0 || !(buf[n-1] == ETX && (n < 2 || buf[n-2] != DLE)) {
		m, err := e.Port.ReadTimeout(buf[n:], timeout)
		if err != nil {
			return nil, IOError{Op: "read", Err: err}
		}
		if m == 0 {
			misses++
		} else {
			misses = 0
		}
		n += m
		if misses >= 2 {
			return nil, TimeoutError{Cmd: e.lastCmd}
		}
		if n >= len(buf) {
			return nil, FramingError{Detail: "reply exceeds maximum frame size"}
		}
	}
	return buf[:n], nil
}

// Repeat re-issues the last command sent with a zero-length payload,
// implementing an851_repeat.
func (e *Engine) Repeat() ([]byte, error) {
	return e.Do(e.lastCmd, nil, 0)
}
