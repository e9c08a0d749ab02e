package an851

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		cmd     Command
		payload []byte
	}{
		{"no payload", CmdReadVersion, nil},
		{"short payload", CmdReadFlash, []byte{2, 0x00, 0x08, 0x00}},
		{"control bytes in payload", CmdWriteFlash, []byte{0x04, 0x05, 0x0F, 0x01, 0x02}},
		{"control command byte", Command(ETX), []byte{0x01}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			frame := Encode(c.cmd, c.payload)
			cmd, payload, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if cmd != c.cmd {
				t.Fatalf("command mismatch: want %v got %v", c.cmd, cmd)
			}
			if !bytes.Equal(payload, c.payload) {
				t.Fatalf("payload mismatch: want %v got %v", c.payload, payload)
			}
		})
	}
}

func TestEncodeStuffsChecksum(t *testing.T) {
	// Find a payload whose checksum byte is exactly one of the control
	// bytes, and confirm the codec escapes it.
	for _, want := range []byte{0x04, 0x05, 0x0F} {
		payload := []byte{byte(0x100 - int(CmdReadVersion) - int(want))}
		if checksum(CmdReadVersion, payload) != want {
			continue
		}
		frame := Encode(CmdReadVersion, payload)
		// two STX + command + payload byte + escape+checksum + ETX
		found := false
		for i := 0; i < len(frame)-1; i++ {
			if frame[i] == DLE && frame[i+1] == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("checksum byte %02X not stuffed in frame %X", want, frame)
		}
		return
	}
	t.Skip("no payload byte produced a control-valued checksum in range tried")
}

func TestChecksumRange(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	sum := int(CmdWriteFlash)
	for _, b := range payload {
		sum += int(b)
	}
	chk := checksum(CmdWriteFlash, payload)
	if (sum+int(chk))%256 != 0 {
		t.Fatalf("(sum + checksum) mod 256 != 0: sum=%d chk=%d", sum, chk)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	frame := Encode(CmdReadVersion, []byte{0x02})
	frame[len(frame)-2] ^= 0xFF // corrupt the checksum byte (pre-ETX)
	_, _, err := Decode(frame)
	if _, ok := err.(ChecksumError); !ok {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
}

func TestDecodeMissingTerminator(t *testing.T) {
	frame := Encode(CmdReadVersion, []byte{0x02})
	frame = frame[:len(frame)-1]
	_, _, err := Decode(frame)
	if _, ok := err.(FramingError); !ok {
		t.Fatalf("expected FramingError, got %v", err)
	}
}
