package hex32

import (
	"bufio"
	"io"
	"log"
)

// Codec adapts the package-level Bounds/Load/Write functions to
// firmware.Codec.
type Codec struct{}

func (Codec) Bounds(r io.Reader) (start, end uint32, err error) { return Bounds(r) }
func (Codec) Load(r io.Reader, buf []byte) error                { return Load(r, buf) }
func (Codec) Write(w io.Writer, buf []byte, start, end uint32) error {
	return Write(w, buf, start, end)
}

// Bounds scans r and returns the smallest and largest+1 address covered by
// data records, ignoring configuration-register data (address &
// ConfigRegisterMask != 0). It does not require a destination buffer and
// is meant to be called before Load to size one, mirroring
// rigel_program_alloc's two passes over the same file.
func Bounds(r io.Reader) (start, end uint32, err error) {
	p := &Parser{}
	scanner := bufio.NewScanner(r)
	seen := false
	for scanner.Scan() {
		rec, err := p.ParseLine(scanner.Text())
		if err != nil {
			return 0, 0, err
		}
		if rec.Type == RecEOF {
			break
		}
		if rec.Type != RecData {
			continue
		}
		if rec.Address&ConfigRegisterMask != 0 {
			continue
		}
		recEnd := rec.Address + uint32(rec.Length)
		if !seen {
			start, end = rec.Address, recEnd
			seen = true
			continue
		}
		if rec.Address < start {
			start = rec.Address
		}
		if recEnd > end {
			end = recEnd
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Load parses r and copies each data record's payload into buf at its
// record address. Configuration-register records that fall outside buf
// are skipped, with exactly one log.Printf warning for the whole call,
// matching the original's warn_config_data latch. A data record that
// falls outside buf and is not configuration data is ErrCapacity.
func Load(r io.Reader, buf []byte) error {
	p := &Parser{}
	scanner := bufio.NewScanner(r)
	warned := false
	for scanner.Scan() {
		rec, err := p.ParseLine(scanner.Text())
		if err != nil {
			return err
		}
		if rec.Type == RecEOF {
			break
		}
		if rec.Type != RecData {
			continue
		}
		if int(rec.Address)+len(rec.Data) > len(buf) {
			if rec.Address&ConfigRegisterMask != 0 {
				if !warned {
					log.Printf("hex32: ignoring configuration register data in input")
					warned = true
				}
				continue
			}
			return ErrCapacity{Address: rec.Address}
		}
		copy(buf[rec.Address:], rec.Data)
	}
	return scanner.Err()
}

// Write emits buf[start:end] as HEX32: a leading extended-linear-zero
// record, MaxDataLength-byte data records (switching to a new extended
// linear record whenever the address crosses a 64 KiB boundary), CRLF
// line endings, upper-case hex, and the EOF record.
func Write(w io.Writer, buf []byte, start, end uint32) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(":020000040000FA\r\n"); err != nil {
		return err
	}

	ext := uint16(0)
	length := uint8(MaxDataLength)
	for addr := start; addr < end; addr += uint32(length) {
		length = MaxDataLength
		if end-addr < uint32(length) {
			length = uint8(end - addr)
		}

		hi := uint16(addr >> 16)
		if hi != ext {
			ext = hi
			chk := checksum(2, 0, RecExtLinear, []byte{byte(ext >> 8), byte(ext)})
			if _, err := writeHexLine(bw, 2, 0, RecExtLinear, []byte{byte(ext >> 8), byte(ext)}, chk); err != nil {
				return err
			}
		}

		addr16 := uint16(addr)
		data := buf[addr : addr+uint32(length)]
		chk := checksum(length, addr16, RecData, data)
		if _, err := writeHexLine(bw, length, addr16, RecData, data, chk); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString(":00000001FF\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

const hexDigits = "0123456789ABCDEF"

func writeHexLine(bw *bufio.Writer, length uint8, addr uint16, rtype RecordType, data []byte, chk uint8) (int, error) {
	buf := make([]byte, 0, 1+2+4+2+2*len(data)+2+2)
	buf = append(buf, ':')
	buf = appendHexByte(buf, length)
	buf = appendHexByte(buf, byte(addr>>8))
	buf = appendHexByte(buf, byte(addr))
	buf = appendHexByte(buf, byte(rtype))
	for _, b := range data {
		buf = appendHexByte(buf, b)
	}
	buf = appendHexByte(buf, chk)
	buf = append(buf, '\r', '\n')
	return bw.Write(buf)
}

func appendHexByte(buf []byte, b byte) []byte {
	return append(buf, hexDigits[b>>4], hexDigits[b&0xF])
}
