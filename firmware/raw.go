package firmware

import "io"

// Raw is the plain-binary format: the file's entire content occupies
// [0, len(file)), grounded on binaryf_read. It carries no addressing
// metadata of its own, so Bounds always reports start 0.
type Raw struct{}

func (Raw) Bounds(r io.Reader) (start, end uint32, err error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return 0, 0, err
	}
	return 0, uint32(n), nil
}

func (Raw) Load(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	_ = n
	return nil
}

func (Raw) Write(w io.Writer, buf []byte, start, end uint32) error {
	_, err := w.Write(buf[start:end])
	return err
}
