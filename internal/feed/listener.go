package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/optical.position/internal/monitoring"
	"github.com/banshee-data/optical.position/internal/timeutil"
)

// Handler consumes a single payload. A returned error marks the payload as
// rejected in the listener statistics.
type Handler func(payload string) error

// Stats counts what a listener has seen. All fields are updated atomically.
type Stats struct {
	Packets  atomic.Int64
	Bytes    atomic.Int64
	Payloads atomic.Int64
	Rejected atomic.Int64
}

// StatsSnapshot is a plain copy of Stats.
type StatsSnapshot struct {
	Packets  int64 `json:"packets"`
	Bytes    int64 `json:"bytes"`
	Payloads int64 `json:"payloads"`
	Rejected int64 `json:"rejected"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Packets:  s.Packets.Load(),
		Bytes:    s.Bytes.Load(),
		Payloads: s.Payloads.Load(),
		Rejected: s.Rejected.Load(),
	}
}

// UDPListener receives datagrams on one port and hands each newline separated
// payload to a Handler.
type UDPListener struct {
	name        string
	address     string
	rcvBuf      int
	logInterval time.Duration
	factory     UDPSocketFactory
	clock       timeutil.Clock
	handler     Handler
	stats       Stats
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Name        string // used in log lines, e.g. "pixel" or "platform"
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Factory     UDPSocketFactory
	Clock       timeutil.Clock
	Handler     Handler
}

// NewUDPListener creates a listener. Start must be called to receive.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	factory := config.Factory
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rcvBuf := config.RcvBuf
	if rcvBuf == 0 {
		rcvBuf = 1 << 16
	}
	name := config.Name
	if name == "" {
		name = "udp"
	}
	return &UDPListener{
		name:        name,
		address:     config.Address,
		rcvBuf:      rcvBuf,
		logInterval: logInterval,
		factory:     factory,
		clock:       clock,
		handler:     config.Handler,
	}
}

// Stats returns the listener counters.
func (l *UDPListener) Stats() StatsSnapshot {
	return l.stats.Snapshot()
}

// Start listens until ctx is cancelled. It returns ctx.Err() on cancellation.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %q: %w", l.address, err)
	}

	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %q: %w", l.address, err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		monitoring.Logf("Warning: failed to set %s receive buffer to %d: %v", l.name, l.rcvBuf, err)
	}
	monitoring.Logf("%s feed listening on %s", l.name, conn.LocalAddr())

	go l.logStats(ctx)

	buffer := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("%s feed stopping: %v", l.name, ctx.Err())
			return ctx.Err()
		default:
		}

		// short deadline so cancellation is noticed promptly
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			monitoring.Logf("%s feed read error: %v", l.name, err)
			continue
		}

		l.handleDatagram(buffer[:n], from)
	}
}

func (l *UDPListener) handleDatagram(data []byte, from *net.UDPAddr) {
	l.stats.Packets.Add(1)
	l.stats.Bytes.Add(int64(len(data)))

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		l.stats.Payloads.Add(1)
		if l.handler == nil {
			continue
		}
		if err := l.handler(line); err != nil {
			l.stats.Rejected.Add(1)
			monitoring.Logf("%s feed: rejected payload %q from %v: %v", l.name, line, from, err)
		}
	}
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()

	var last StatsSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s := l.Stats()
			if s.Packets == last.Packets {
				continue
			}
			monitoring.Logf("%s feed: %d packets (%d new), %d payloads, %d rejected",
				l.name, s.Packets, s.Packets-last.Packets, s.Payloads, s.Rejected)
			last = s
		}
	}
}
