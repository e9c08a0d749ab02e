// Package ifibin implements the Innovation First fixed-width text dump
// format: one line per 16 bytes, a 6-hex-digit address followed by 16
// space-separated 2-hex-digit byte values.
package ifibin

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DataLength is the number of data bytes each line carries.
const DataLength = 16

// LineLength is the fixed width of one line, including its terminator:
// 6 address digits, DataLength space-prefixed byte pairs, and a
// trailing CRLF.
const LineLength = 6 + DataLength*3 + 2

// Record is one parsed line: an address and exactly DataLength bytes.
type Record struct {
	Address uint32
	Data    [DataLength]byte
}

func parseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) != DataLength+1 {
		return Record{}, FormatError{Detail: fmt.Sprintf("expected %d fields, got %d", DataLength+1, len(fields))}
	}
	addr, err := strconv.ParseUint(fields[0], 16, 32)
	if err != nil {
		return Record{}, FormatError{Detail: "bad address field " + strconv.Quote(fields[0])}
	}
	var rec Record
	rec.Address = uint32(addr)
	for i := 0; i < DataLength; i++ {
		b, err := strconv.ParseUint(fields[i+1], 16, 8)
		if err != nil {
			return Record{}, FormatError{Detail: "bad data byte " + strconv.Quote(fields[i+1])}
		}
		rec.Data[i] = byte(b)
	}
	return rec, nil
}

func formatLine(addr uint32, data []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%06X", addr)
	for i := 0; i < DataLength; i++ {
		v := byte(0xFF)
		if i < len(data) {
			v = data[i]
		}
		fmt.Fprintf(&b, " %02X", v)
	}
	b.WriteString("\r\n")
	return b.String()
}

// Codec adapts Bounds/Load/Write to firmware.Codec.
type Codec struct{}

func (Codec) Bounds(r io.Reader) (start, end uint32, err error) { return Bounds(r) }
func (Codec) Load(r io.Reader, buf []byte) error                { return Load(r, buf) }
func (Codec) Write(w io.Writer, buf []byte, start, end uint32) error {
	return Write(w, buf, start, end)
}

// Bounds scans r and returns the first line's address as start and the
// last line's address plus DataLength as end.
func Bounds(r io.Reader) (start, end uint32, err error) {
	scanner := bufio.NewScanner(r)
	seen := false
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := parseLine(text)
		if err != nil {
			return 0, 0, err
		}
		if !seen {
			start = rec.Address
			seen = true
		}
		end = rec.Address + DataLength
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Load parses r and copies each line's 16 bytes into buf at its address.
func Load(r io.Reader, buf []byte) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := parseLine(text)
		if err != nil {
			return err
		}
		if int(rec.Address)+DataLength > len(buf) {
			return ErrCapacity{Address: rec.Address}
		}
		copy(buf[rec.Address:], rec.Data[:])
	}
	return scanner.Err()
}

// Write emits buf[start:end] as fixed-width IFI-BIN lines, padding a
// short final line with 0xFF.
func Write(w io.Writer, buf []byte, start, end uint32) error {
	bw := bufio.NewWriter(w)
	for addr := start; addr < end; addr += DataLength {
		n := DataLength
		if end-addr < DataLength {
			n = int(end - addr)
		}
		if _, err := bw.WriteString(formatLine(addr, buf[addr:addr+uint32(n)])); err != nil {
			return err
		}
	}
	return bw.Flush()
}
