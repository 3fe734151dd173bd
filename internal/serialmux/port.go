package serialmux

import "io"

// SerialPorter is the minimal interface needed for a serial port. Tests
// substitute in-memory ports.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens a serial port. NewRealSerialMux uses go.bug.st/serial;
// tests pass their own.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)
