// Package rigel wires the serial transport, AN851 protocol engine, and
// device driver into a single session a caller drives end to end:
// connect, transfer firmware, run the resident program.
package rigel

import (
	"github.com/daedaluz/rigel/device"
	"github.com/daedaluz/rigel/serial"
)

// Session composes an open serial port with a connected device driver.
// It is not safe for concurrent use from multiple goroutines, matching
// device.Driver and an851.Engine.
type Session struct {
	Port   *serial.Port
	Driver *device.Driver

	closed bool
}

// Connect opens path, identifies the attached device against table, and
// returns a ready-to-use Session.
func Connect(path string, table device.GeometryTable) (*Session, error) {
	port, err := serial.OpenAN851(path)
	if err != nil {
		return nil, err
	}
	d, err := device.Connect(port, table)
	if err != nil {
		port.Close()
		return nil, err
	}
	return &Session{Port: port, Driver: d}, nil
}

// Disconnect releases the underlying transport. It is idempotent.
func (s *Session) Disconnect() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Driver.Disconnect()
}

// RunUserCode hands control to the resident program and terminates the
// session: a further RunUserCode returns ErrSessionClosed, and Disconnect
// becomes a no-op returning nil.
func (s *Session) RunUserCode() error {
	if s.closed {
		return ErrSessionClosed{}
	}
	err := s.Driver.RunUserCode()
	s.closed = true
	s.Port.Close()
	return err
}

// ErrSessionClosed reports use of a Session after RunUserCode or
// Disconnect.
type ErrSessionClosed struct{}

func (e ErrSessionClosed) Error() string { return "rigel: session closed" }
