package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux("udp")

	if err := d.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	err := d.SendCommand("PING")
	if !errors.Is(err, ErrSerialDisabled) {
		t.Fatalf("SendCommand: expected ErrSerialDisabled, got %v", err)
	}
	if !strings.Contains(err.Error(), `"udp"`) {
		t.Errorf("expected platform source in error, got %q", err)
	}

	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Unsubscribe")
	}
	d.Unsubscribe(id)

	_, ch = d.Subscribe()
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Close")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	_, ch = d.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Close")
	}
}

func TestDisabledSerialMux_MonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledSerialMux("disabled")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Monitor(ctx) }()

	select {
	case <-done:
		t.Fatal("Monitor returned before cancel")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	d := NewDisabledSerialMux("udp")
	_ = d.SendCommand("PING")
	_ = d.SendCommand("STREAM ATTITUDE 5")

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	want := "serial telemetry disabled\nplatform source: udp\nrejected commands: 2\n"
	if rec.Body.String() != want {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}
