package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// ErrSerialDisabled is returned by SendCommand when platform telemetry does
// not come from a serial port.
var ErrSerialDisabled = errors.New("serial telemetry disabled")

// DisabledSerialMux is the link used when the platform source is "udp" or
// "disabled". No line is ever produced; a subscription only ends, on
// Unsubscribe or Close, so that Consume loops return during shutdown.
type DisabledSerialMux struct {
	reason   string
	rejected atomic.Int64

	mu     sync.Mutex
	open   map[string]chan string
	closed bool
}

// NewDisabledSerialMux returns a disabled link. reason is reported by
// SendCommand errors and the admin route, typically the platform source.
func NewDisabledSerialMux(reason string) *DisabledSerialMux {
	return &DisabledSerialMux{reason: reason, open: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := newSubscriberID(), make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.open[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(id)
}

// release closes one subscription. Callers hold mu.
func (d *DisabledSerialMux) release(id string) {
	if ch, ok := d.open[id]; ok {
		delete(d.open, id)
		close(ch)
	}
}

// SendCommand counts and rejects the command.
func (d *DisabledSerialMux) SendCommand(command string) error {
	d.rejected.Add(1)
	return fmt.Errorf("%w (platform source %q): dropped %q", ErrSerialDisabled, d.reason, command)
}

// Monitor has no port to read and waits for ctx.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id := range d.open {
		d.release(id)
	}
	return nil
}

func (d *DisabledSerialMux) Initialise() error { return nil }

// AttachAdminRoutes mounts /debug/serial-disabled, which explains where
// platform state comes from instead.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "serial telemetry disabled\nplatform source: %s\nrejected commands: %d\n",
			d.reason, d.rejected.Load())
	})
}
