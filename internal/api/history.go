package api

import (
	"sync"

	"github.com/banshee-data/optical.position/internal/fusion"
)

// DefaultHistorySize is how many corrections the chart keeps when no size is
// given.
const DefaultHistorySize = 200

// History keeps the most recent corrections in memory for the debug chart. It
// implements the tracking sink interface.
type History struct {
	mu    sync.Mutex
	buf   []fusion.Correction
	next  int
	count int
}

// NewHistory returns a ring buffer holding up to size corrections.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]fusion.Correction, size)}
}

func (h *History) Publish(c fusion.Correction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = c
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
	return nil
}

// Recent returns the held corrections, oldest first.
func (h *History) Recent() []fusion.Correction {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]fusion.Correction, 0, h.count)
	start := (h.next - h.count + len(h.buf)) % len(h.buf)
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}
