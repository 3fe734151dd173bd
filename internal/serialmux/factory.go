package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerialPort opens a real serial device.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialMux opens the device at path and wraps it.
func NewRealSerialMux(path string, opts PortOptions, initCommands ...string) (*SerialMux[SerialPorter], error) {
	return Open(OpenSerialPort, path, opts, initCommands...)
}

// Open opens a port with opener and wraps it.
func Open(opener PortOpener, path string, opts PortOptions, initCommands ...string) (*SerialMux[SerialPorter], error) {
	port, err := opener(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux[SerialPorter](port, initCommands...), nil
}
