package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// NewMockSerialMux returns a mux fed by a synthetic bridge that reports a
// random height between 30 and 40 m and heading every interval. Commands
// written to it are discarded.
func NewMockSerialMux(interval time.Duration) *SerialMux[SerialPorter] {
	r, w := io.Pipe()
	port := &pipePort{Reader: r, writer: w}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			line := fmt.Sprintf("(%.2f, %.2f)\n", 30+rand.Float64()*10, rand.Float64()*360)
			if _, err := w.Write([]byte(line)); err != nil {
				return
			}
		}
	}()

	return NewSerialMux[SerialPorter](port)
}

type pipePort struct {
	io.Reader
	writer *io.PipeWriter
}

func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }

func (p *pipePort) Close() error {
	return p.writer.CloseWithError(errPortClosed)
}

// TestableSerialPort is an in-memory SerialPorter. Reads block until data is
// added with AddReadData or the port is closed; writes are captured.
type TestableSerialPort struct {
	mu         sync.Mutex
	cond       *sync.Cond
	readBuf    bytes.Buffer
	writeBuf   bytes.Buffer
	writeError error
	shortWrite bool
	closed     bool
	closeCalls int
	eof        bool
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.readBuf.Len() == 0 && !p.closed && !p.eof {
		p.cond.Wait()
	}
	if p.readBuf.Len() > 0 {
		return p.readBuf.Read(b)
	}
	if p.closed {
		return 0, errPortClosed
	}
	return 0, io.EOF
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if p.writeError != nil {
		return 0, p.writeError
	}
	if p.shortWrite && len(b) > 0 {
		return p.writeBuf.Write(b[:len(b)-1])
	}
	return p.writeBuf.Write(b)
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCalls++
	p.cond.Broadcast()
	return nil
}

// AddReadData queues data for subsequent reads.
func (p *TestableSerialPort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
	p.cond.Broadcast()
}

// SetEOF makes reads return io.EOF once buffered data is consumed.
func (p *TestableSerialPort) SetEOF() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.cond.Broadcast()
}

// SetWriteError makes every write fail with err.
func (p *TestableSerialPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeError = err
}

// SetShortWrite makes writes report one byte fewer than requested.
func (p *TestableSerialPort) SetShortWrite(short bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortWrite = short
}

// Written returns everything written so far.
func (p *TestableSerialPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// CloseCalls returns how many times Close was called.
func (p *TestableSerialPort) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}
