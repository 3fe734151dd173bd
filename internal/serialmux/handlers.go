package serialmux

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/optical.position/internal/feed"
	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/monitoring"
)

// StatusFields holds the most recent value of every field seen in a status
// report from the bridge.
type StatusFields struct {
	mu     sync.Mutex
	fields map[string]any
}

// KeyValue is one status field.
type KeyValue struct {
	Key   string
	Value any
}

// CurrentStatus is shared by the line handler and the admin routes.
var CurrentStatus = &StatusFields{}

// Merge folds a JSON status report into the held fields.
func (s *StatusFields) Merge(payload string) error {
	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return fmt.Errorf("failed to unmarshal status: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields == nil {
		s.fields = make(map[string]any)
	}
	for k, v := range values {
		s.fields[k] = v
	}
	return nil
}

// Get returns one field.
func (s *StatusFields) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.fields[key]
	return v, ok
}

// Sorted returns the fields ordered by key.
func (s *StatusFields) Sorted() []KeyValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KeyValue, 0, len(s.fields))
	for k, v := range s.fields {
		out = append(out, KeyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reset forgets every field.
func (s *StatusFields) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = nil
}

// HandleLine dispatches one telemetry line. Platform readings are parsed and
// passed to onState.
func HandleLine(line string, onState func(fusion.PlatformState)) error {
	switch ClassifyLine(line) {
	case LinePlatformState:
		state, err := feed.ParsePlatformState(line)
		if err != nil {
			return fmt.Errorf("failed to handle platform state: %w", err)
		}
		if onState != nil {
			onState(state)
		}
	case LineStatus:
		if err := CurrentStatus.Merge(line); err != nil {
			return fmt.Errorf("failed to handle status report: %w", err)
		}
		monitoring.Debugf("status line: %s", line)
	case LineComment:
		monitoring.Debugf("bridge: %s", line)
	default:
		monitoring.Logf("unknown telemetry line: %s", line)
	}
	return nil
}

// Consume handles every line from a subscription until it is closed or done
// is closed. Subscribe before starting Monitor so that the first lines read
// from the port are not broadcast to nobody.
func Consume(lines <-chan string, done <-chan struct{}, onState func(fusion.PlatformState)) {
	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := HandleLine(line, onState); err != nil {
				monitoring.Logf("serial: %v", err)
			}
		}
	}
}
