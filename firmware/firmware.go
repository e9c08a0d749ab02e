// Package firmware unifies the file-format codecs (hex32, ifibin, raw)
// behind a single interface and loads/dumps them against an in-memory
// image or a connected device.
package firmware

import (
	"io"

	"github.com/daedaluz/rigel/device"
)

// Codec is satisfied by hex32.Codec, ifibin.Codec, and Raw.
type Codec interface {
	Bounds(r io.Reader) (start, end uint32, err error)
	Load(r io.Reader, buf []byte) error
	Write(w io.Writer, buf []byte, start, end uint32) error
}

// Image is a flat in-memory view of a device region: a byte slice
// pre-filled with the region's erase byte, with Start/End watermarks
// describing the populated range.
type Image struct {
	Data       []byte
	Start, End uint32
}

// Region identifies which of a connected device's three memory regions
// DumpImage reads.
type Region int

const (
	RegionUserFlash Region = iota
	RegionBootSector
	RegionEEPROM
)

// newReaders lets LoadImage run a codec's two-pass Bounds-then-Load
// sequence over the same underlying bytes without requiring the caller's
// io.Reader to be seekable.
func newReaders(content []byte) (boundsR, loadR *sliceReader) {
	return &sliceReader{b: content}, &sliceReader{b: content}
}

type sliceReader struct {
	b []byte
	i int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.i >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.i:])
	s.i += n
	return n, nil
}

// LoadImage reads the full content of r, then runs codec's Bounds pass to
// size a capacity-bounded buffer (pre-filled with eraseByte and the end
// rounded up to a row boundary) and its Load pass to populate it,
// mirroring rigel_program_alloc's two-pass allocate-then-populate
// sequence.
func LoadImage(codec Codec, r io.Reader, capacity uint32, eraseByte byte, rowSize uint32) (*Image, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	boundsR, loadR := newReaders(content)

	start, end, err := codec.Bounds(boundsR)
	if err != nil {
		return nil, err
	}
	if rowSize > 0 && end%rowSize != 0 {
		end += rowSize - end%rowSize
	}
	if end > capacity {
		return nil, ErrCapacity{Requested: end, Capacity: capacity}
	}

	buf := make([]byte, capacity)
	for i := range buf {
		buf[i] = eraseByte
	}
	if err := codec.Load(loadR, buf); err != nil {
		return nil, err
	}
	return &Image{Data: buf, Start: start, End: end}, nil
}

// DumpImage reads region off a connected driver and returns it as an
// Image whose Start/End bound what was read, mirroring rigel_memdump's
// three region choices. For the user-flash region Data starts at address
// 0, so Data[:Start] is unread and left zero.
func DumpImage(d *device.Driver, region Region) (*Image, error) {
	switch region {
	case RegionUserFlash:
		// ReadUserProgram addresses its buffer absolutely (like ReadFlash/
		// WriteFlash), so the buffer must cover [0, FlashHigh] even though
		// only [FlashLow, n) ends up populated.
		buf := make([]byte, d.Mem.FlashHigh+1)
		n, err := d.ReadUserProgram(buf)
		if err != nil {
			return nil, err
		}
		return &Image{Data: buf[:n], Start: d.Mem.FlashLow, End: uint32(n)}, nil
	case RegionBootSector:
		buf := make([]byte, d.Mem.FlashLow)
		if err := d.ReadBootSector(buf); err != nil {
			return nil, err
		}
		return &Image{Data: buf, Start: 0, End: d.Mem.FlashLow}, nil
	case RegionEEPROM:
		data, err := d.ReadEEPROM(d.Mem.EEPROMLow, d.Mem.EEPROMHigh-d.Mem.EEPROMLow+1)
		if err != nil {
			return nil, err
		}
		return &Image{Data: data, Start: d.Mem.EEPROMLow, End: d.Mem.EEPROMHigh + 1}, nil
	default:
		return nil, ErrUnknownRegion{Region: region}
	}
}

// WriteImage encodes img[img.Start:img.End] with codec to w.
func WriteImage(codec Codec, w io.Writer, img *Image) error {
	return codec.Write(w, img.Data, img.Start, img.End)
}
