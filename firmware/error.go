package firmware

import "fmt"

// ErrCapacity reports a loaded image whose end address exceeds the
// destination buffer's capacity.
type ErrCapacity struct {
	Requested, Capacity uint32
}

func (e ErrCapacity) Error() string {
	return fmt.Sprintf("firmware: image end %#x exceeds capacity %#x", e.Requested, e.Capacity)
}

// ErrUnknownRegion reports a Region value DumpImage does not recognize.
type ErrUnknownRegion struct {
	Region Region
}

func (e ErrUnknownRegion) Error() string {
	return fmt.Sprintf("firmware: unknown region %d", int(e.Region))
}
