package feed

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the part of *net.UDPConn the listener needs.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory creates listening sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
type RealUDPSocketFactory struct{}

// ListenUDP opens a UDP socket bound to laddr.
func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket replays a fixed list of datagrams, then times out on every
// read until closed. It is safe for use from the listener goroutine and the
// test goroutine at the same time.
type MockUDPSocket struct {
	mu             sync.Mutex
	packets        []MockUDPPacket
	readIndex      int
	closed         bool
	readBufferSize int
	readError      error
	localAddress   *net.UDPAddr
}

// MockUDPPacket is one datagram returned by MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockUDPSocket returns a socket that will deliver packets in order.
func NewMockUDPSocket(packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		packets:      packets,
		localAddress: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5600},
	}
}

// MockPackets builds packets from payload strings.
func MockPackets(payloads ...string) []MockUDPPacket {
	from := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40000}
	pkts := make([]MockUDPPacket, len(payloads))
	for i, p := range payloads {
		pkts[i] = MockUDPPacket{Data: []byte(p), Addr: from}
	}
	return pkts
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.readError != nil {
		err := m.readError
		m.readError = nil
		return 0, nil, err
	}
	if m.readIndex >= len(m.packets) {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		m.mu.Lock()
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[m.readIndex]
	m.readIndex++
	return copy(b, pkt.Data), pkt.Addr, nil
}

// SetReadError makes the next read fail with err.
func (m *MockUDPSocket) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readError = err
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBufferSize = bytes
	return nil
}

// ReadBufferSize returns the value last passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Drained reports whether every packet has been read.
func (m *MockUDPSocket) Drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readIndex >= len(m.packets)
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.localAddress }

// MockUDPSocketFactory hands out a single MockUDPSocket.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Error  error
}

func (f *MockUDPSocketFactory) ListenUDP(string, *net.UDPAddr) (UDPSocket, error) {
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
