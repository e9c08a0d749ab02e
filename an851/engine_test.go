package an851

import (
	"bytes"
	"testing"
	"time"

	"github.com/daedaluz/rigel/serial"
)

func newLoopback(t *testing.T) (*serial.Port, *Simulator) {
	t.Helper()
	master, slave, err := serial.OpenPTY(nil, nil)
	if err != nil {
		t.Skipf("no pty available in this environment: %v", err)
	}
	sim := NewSimulator(slave, 0x20000, 0xFF)
	go sim.Serve()
	t.Cleanup(func() {
		sim.Stop()
		master.Close()
		slave.Close()
	})
	return master, sim
}

func TestEngineReadVersion(t *testing.T) {
	port, sim := newLoopback(t)
	sim.Version = 0x0101

	e := NewEngine(port)
	e.RLag, e.WLag = time.Millisecond, time.Millisecond
	reply, err := e.Do(CmdReadVersion, []byte{0x02}, 2)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	got := uint16(reply[0])<<8 | uint16(reply[1])
	if got != 0x0101 {
		t.Fatalf("version: want 0x0101 got %#04x", got)
	}
}

func TestEngineFlashRoundTrip(t *testing.T) {
	port, _ := newLoopback(t)
	e := NewEngine(port)
	e.RLag, e.WLag = time.Millisecond, time.Millisecond

	data := []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7}
	payload := append([]byte{1, 0x00, 0x08, 0x00}, data...)
	if _, err := e.Do(CmdWriteFlash, payload, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := e.Do(CmdReadFlash, []byte{8, 0x00, 0x08, 0x00}, 8)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(reply, data) {
		t.Fatalf("read-back mismatch: want %X got %X", data, reply)
	}
}

func TestEngineEchoMismatchNotRetried(t *testing.T) {
	// A reply with a different command than requested must fail
	// immediately, not after exhausting retries.
	master, slave, err := serial.OpenPTY(nil, nil)
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	go func() {
		buf := make([]byte, 64)
		n, _ := slave.ReadTimeout(buf, time.Second)
		if n == 0 {
			return
		}
		slave.WriteAll(Encode(CmdWriteFlash, nil))
	}()

	e := NewEngine(master)
	e.RLag, e.WLag = time.Millisecond, time.Millisecond
	_, err = e.Do(CmdReadVersion, []byte{0x02}, 2)
	if _, ok := err.(EchoMismatchError); !ok {
		t.Fatalf("expected EchoMismatchError, got %v", err)
	}
}
