package ifibin

import "fmt"

// FormatError reports a malformed IFI-BIN line.
type FormatError struct {
	Detail string
}

func (e FormatError) Error() string { return "ifibin: " + e.Detail }

// ErrCapacity reports a line whose address+data exceeds the caller's
// buffer.
type ErrCapacity struct {
	Address uint32
}

func (e ErrCapacity) Error() string {
	return fmt.Sprintf("ifibin: record at %#06x exceeds buffer capacity", e.Address)
}
