package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/monitoring"
)

// Publisher sends each correction as a "(distance, bearing)" datagram to the
// flight controller bridge. Publish never blocks; when the queue is full the
// correction is dropped and counted.
type Publisher struct {
	conn        io.WriteCloser
	queue       chan []byte
	address     string
	logInterval time.Duration
	dropped     atomic.Int64
	sent        atomic.Int64
	closeOnce   sync.Once
}

// NewPublisher dials address ("host:port") over UDP.
func NewPublisher(address string, logInterval time.Duration) (*Publisher, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve correction address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial correction address: %w", err)
	}
	return NewPublisherWithConn(conn, address, logInterval), nil
}

// NewPublisherWithConn wraps an existing connection.
func NewPublisherWithConn(conn io.WriteCloser, address string, logInterval time.Duration) *Publisher {
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &Publisher{
		conn:        conn,
		queue:       make(chan []byte, 64),
		address:     address,
		logInterval: logInterval,
	}
}

// Start runs the send loop until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(p.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-p.queue:
				if !ok {
					return
				}
				if _, err := p.conn.Write(msg); err != nil {
					failed++
					lastErr = err
					continue
				}
				p.sent.Add(1)
			case <-ticker.C:
				if failed > 0 {
					monitoring.Logf("failed to send %d corrections to %s (latest: %v)", failed, p.address, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()
	monitoring.Logf("publishing corrections to %s", p.address)
}

// Publish queues a correction for sending.
func (p *Publisher) Publish(c fusion.Correction) error {
	msg := []byte(FormatCorrection(c.Fix))
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
	}
	return nil
}

// Sent returns the number of corrections written to the connection.
func (p *Publisher) Sent() int64 { return p.sent.Load() }

// Dropped returns the number of corrections discarded because the queue was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Close stops accepting corrections and closes the connection.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.conn.Close()
	})
	return err
}
