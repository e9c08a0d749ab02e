package rigel

import (
	"testing"
	"time"

	"github.com/daedaluz/rigel/an851"
	"github.com/daedaluz/rigel/device"
	"github.com/daedaluz/rigel/serial"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	master, slave, err := serial.OpenPTY(nil, nil)
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	sim := an851.NewSimulator(slave, 0x20000, 0xFF)
	sim.DeviceID = 0x1230
	sim.Version = 0x0101
	go sim.Serve()
	t.Cleanup(sim.Stop)

	table := device.GeometryTable{{
		DevID: 0x1230,
		Name:  "TESTPIC",
		Mem: device.Layout{
			FlashLow: 0x0800, FlashHigh: 0x1FFFF,
			EEPROMLow: 0x0000, EEPROMHigh: 0x00FF,
			ConfigLow: 0x300000, ConfigHigh: 0x300006,
		},
		RLag: time.Millisecond, WLag: time.Millisecond,
		MaxPacketSize: 64,
	}}
	d, err := device.Connect(master, table)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return &Session{Port: master, Driver: d}
}

func TestSessionDisconnectIdempotent(t *testing.T) {
	s := newTestSession(t)
	if err := s.Disconnect(); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatalf("second disconnect should be a no-op, got: %v", err)
	}
}

func TestSessionRunUserCodeClosesSession(t *testing.T) {
	s := newTestSession(t)
	if err := s.RunUserCode(); err != nil {
		t.Fatalf("run user code: %v", err)
	}
	if err := s.RunUserCode(); err == nil {
		t.Fatal("expected ErrSessionClosed on second call")
	} else if _, ok := err.(ErrSessionClosed); !ok {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
