// Package serialmux shares one serial telemetry link between the tracker and
// any number of debug subscribers. Lines read from the port are fanned out to
// every subscriber; commands from any caller are serialised onto the port.
package serialmux

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tailscale.com/tsweb"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// subscriberBuffer is how many lines a slow subscriber may lag before lines
// are dropped for it.
const subscriberBuffer = 16

// SerialMuxInterface is implemented by SerialMux and DisabledSerialMux.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a channel receiving every line read from
	// the port. The channel is closed on Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline terminated command to the port.
	SendCommand(string) error
	// Monitor reads lines until ctx is done or the port fails.
	Monitor(context.Context) error
	Close() error
	// Initialise sends the configured start-up commands.
	Initialise() error
	// AttachAdminRoutes registers /debug/ endpoints for the link.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes a single SerialPorter.
type SerialMux[T SerialPorter] struct {
	port         T
	initCommands []string

	subscriberMu sync.Mutex
	subscribers  map[string]chan string

	commandMu sync.Mutex

	closing atomic.Bool
	lines   atomic.Int64
	dropped atomic.Int64
}

// NewSerialMux wraps port. initCommands are written by Initialise, in order.
func NewSerialMux[T SerialPorter](port T, initCommands ...string) *SerialMux[T] {
	return &SerialMux[T]{
		port:         port,
		initCommands: initCommands,
		subscribers:  make(map[string]chan string),
	}
}

func newSubscriberID() string {
	return uuid.NewString()
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := newSubscriberID()
	ch := make(chan string, subscriberBuffer)

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing.Load() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the subscriber with the given ID.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialise writes the start-up commands, for example to select the
// telemetry stream and its rate on the flight controller bridge.
func (s *SerialMux[T]) Initialise() error {
	for _, command := range s.initCommands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}

	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Stats returns the number of lines read and the number of per-subscriber
// deliveries dropped because a subscriber was full.
func (s *SerialMux[T]) Stats() (lines, dropped int64) {
	return s.lines.Load(), s.dropped.Load()
}

// Monitor reads lines from the port and fans them out to subscribers. It
// returns nil when the port reaches EOF or the mux is closed.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// Scan blocks, so it runs apart from the loop that watches ctx.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if s.closing.Load() {
				return nil
			}
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !s.closing.Load() {
						return err
					}
				default:
				}
				return nil
			}
			if s.closing.Load() {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			s.lines.Add(1)
			s.broadcast(line)
		}
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel and then the port.
func (s *SerialMux[T]) Close() error {
	if s.closing.Swap(true) {
		return nil
	}

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the telemetry link", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to serial port", command)
	})

	// Server-sent events, one per telemetry line.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})

	debug.HandleFunc("serial-status", "latest status fields reported over the telemetry link", func(w http.ResponseWriter, r *http.Request) {
		lines, dropped := s.Stats()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "lines: %d\ndropped: %d\n", lines, dropped)
		for _, kv := range CurrentStatus.Sorted() {
			fmt.Fprintf(w, "%s: %v\n", kv.Key, kv.Value)
		}
	})
}
