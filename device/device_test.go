package device

import (
	"bytes"
	"testing"
	"time"

	"github.com/daedaluz/rigel/an851"
	"github.com/daedaluz/rigel/serial"
)

func testGeometry() Geometry {
	return Geometry{
		DevID: 0x1230,
		Name:  "TESTPIC",
		Mem: Layout{
			FlashLow: 0x0800, FlashHigh: 0x1FFFF,
			EEPROMLow: 0x0000, EEPROMHigh: 0x00FF,
			ConfigLow: 0x300000, ConfigHigh: 0x300006,
		},
		RLag: time.Millisecond, WLag: time.Millisecond,
		MaxPacketSize: 64,
	}
}

func newConnectedDriver(t *testing.T, ifi bool) (*Driver, *an851.Simulator) {
	t.Helper()
	master, slave, err := serial.OpenPTY(nil, nil)
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	sim := an851.NewSimulator(slave, 0x20000, 0xFF)
	sim.DeviceID = 0x1230
	sim.Version = 0x0101
	sim.IFI = ifi
	if ifi {
		for i := range sim.Flash {
			sim.Flash[i] = 0x00
		}
	}
	go sim.Serve()
	t.Cleanup(func() {
		sim.Stop()
		master.Close()
	})

	d, err := Connect(master, GeometryTable{testGeometry()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if d.IsIFI != ifi {
		t.Fatalf("IsIFI: want %v got %v", ifi, d.IsIFI)
	}
	return d, sim
}

func TestConnectVersionAndID(t *testing.T) {
	d, _ := newConnectedDriver(t, false)
	if d.BootVersion != 0x0101 {
		t.Fatalf("version: want 0x0101 got %#04x", d.BootVersion)
	}
	if d.DeviceID != 0x1230 {
		t.Fatalf("device id: want 0x1230 got %#04x", d.DeviceID)
	}
}

func TestFlashRoundTripOneBlock(t *testing.T) {
	d, _ := newConnectedDriver(t, false)
	data := []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7}

	if err := d.EraseFlash(0x0800, 1); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if err := d.WriteFlash(0x0800, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := d.ReadFlash(0x0800, uint32(len(data)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read-back mismatch: want %X got %X", data, got)
	}
}

func TestEraseSplitsAt255Rows(t *testing.T) {
	d, _ := newConnectedDriver(t, false)
	if err := d.EraseFlash(0x0800, 256); err != nil {
		t.Fatalf("erase 256 rows: %v", err)
	}
}

func TestVerifyOnWriteMismatch(t *testing.T) {
	d, sim := newConnectedDriver(t, false)
	d.VerifyOnWrite = true
	sim.DropNextWrite = true

	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	err := d.WriteFlash(0x0800, data)
	if _, ok := err.(ErrVerifyMismatch); !ok {
		t.Fatalf("expected ErrVerifyMismatch, got %v", err)
	}
}

func TestReadUserProgramStopsAtErasedRun(t *testing.T) {
	d, sim := newConnectedDriver(t, false)
	// Lay down 0x0800-0x1000 as "user code" (non-erased), leave the rest
	// at the simulator's default erase byte (0xFF).
	for i := 0x0800; i < 0x1000; i++ {
		sim.Flash[i] = byte(i)
	}

	buf := make([]byte, 0x20000)
	n, err := d.ReadUserProgram(buf)
	if err != nil {
		t.Fatalf("read user program: %v", err)
	}
	if n != 0x1000 {
		t.Fatalf("expected dump to stop at 0x1000, got %#x", n)
	}
}

func TestDescribeReportsBBSIZBlocks(t *testing.T) {
	d, _ := newConnectedDriver(t, false)
	report := d.Describe()
	if len(report.Blocks) == 0 {
		t.Fatal("expected at least one flash block in report")
	}
	if report.Blocks[0].Low != d.Mem.FlashLow {
		t.Fatalf("first block low: want %#x got %#x", d.Mem.FlashLow, report.Blocks[0].Low)
	}
	_ = report.String() // must not panic
}

func TestRunUserCodeIFIvsStandard(t *testing.T) {
	t.Run("ifi", func(t *testing.T) {
		d, sim := newConnectedDriver(t, true)
		if err := d.RunUserCode(); err != nil {
			t.Fatalf("run: %v", err)
		}
		if !sim.RanUserCode {
			t.Fatal("expected IFI run command to be observed")
		}
	})
	t.Run("standard", func(t *testing.T) {
		d, sim := newConnectedDriver(t, false)
		if err := d.RunUserCode(); err != nil {
			t.Fatalf("run: %v", err)
		}
		if !sim.SawReset {
			t.Fatal("expected reset to be observed after eeprom exit write")
		}
		if got := sim.EEPROM[d.Mem.EEPROMHigh]; got != 0x57 {
			t.Fatalf("expected eeprom[%#x] == 0x57, got %#02x", d.Mem.EEPROMHigh, got)
		}
	})
}
