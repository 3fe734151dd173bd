// Package tracking runs the correction loop: platform readings update the
// fusion state, and every pixel offset that arrives once a reading is held
// produces a correction that is handed to each configured sink.
package tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/geometry"
	"github.com/banshee-data/optical.position/internal/monitoring"
)

// Sink receives every correction. Errors are logged and counted; they never
// stop the service.
type Sink interface {
	Publish(fusion.Correction) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(fusion.Correction) error

func (f SinkFunc) Publish(c fusion.Correction) error { return f(c) }

// PlatformRecorder persists platform readings as they arrive.
type PlatformRecorder interface {
	RecordPlatformState(state fusion.PlatformState, at time.Time) error
}

// Stats are the service counters.
type Stats struct {
	PlatformUpdates int64 `json:"platform_updates"`
	PixelEvents     int64 `json:"pixel_events"`
	NotReady        int64 `json:"not_ready"`
	Corrections     int64 `json:"corrections"`
	SinkErrors      int64 `json:"sink_errors"`
	RecorderErrors  int64 `json:"recorder_errors"`
}

type namedSink struct {
	name string
	sink Sink
}

// Service owns the fusion state and its sinks.
type Service struct {
	fusion   *fusion.Fusion
	sinks    []namedSink
	recorder PlatformRecorder
	newID    func() string

	platformUpdates atomic.Int64
	pixelEvents     atomic.Int64
	notReady        atomic.Int64
	corrections     atomic.Int64
	sinkErrors      atomic.Int64
	recorderErrors  atomic.Int64

	latestMu sync.RWMutex
	latest   *fusion.Correction
}

// Option configures a Service.
type Option func(*Service)

// WithSink adds a sink. Sinks are called in the order they were added.
func WithSink(name string, sink Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, namedSink{name: name, sink: sink}) }
}

// WithPlatformRecorder stores every platform reading.
func WithPlatformRecorder(r PlatformRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithIDGenerator overrides how correction IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService returns a service around f.
func NewService(f *fusion.Fusion, opts ...Option) *Service {
	s := &Service{
		fusion: f,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fusion returns the fusion state the service drives.
func (s *Service) Fusion() *fusion.Fusion { return s.fusion }

// HandlePlatformState stores a platform reading.
func (s *Service) HandlePlatformState(state fusion.PlatformState) {
	updatedAt := s.fusion.UpdatePlatformState(state.HeightMeters, state.HeadingDegrees)
	s.platformUpdates.Add(1)
	monitoring.Debugf("platform state: height %.2f m, heading %.2f deg", state.HeightMeters, state.HeadingDegrees)

	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordPlatformState(state, updatedAt); err != nil {
		s.recorderErrors.Add(1)
		monitoring.Logf("failed to record platform state: %v", err)
	}
}

// HandlePixelOffset computes and publishes the correction for one offset.
// It reports false, publishing nothing, while no platform state is held.
func (s *Service) HandlePixelOffset(offset geometry.PixelOffset) (fusion.Correction, bool) {
	s.pixelEvents.Add(1)

	c, ok := s.fusion.Correct(offset)
	if !ok {
		s.notReady.Add(1)
		monitoring.Debugf("dropping pixel offset (%d, %d): no platform state yet", offset.X, offset.Y)
		return fusion.Correction{}, false
	}
	c.ID = s.newID()
	s.corrections.Add(1)
	monitoring.Debugf("correction %s: distance %.2f m, bearing %.2f deg", c.ID, c.Fix.DistanceMeters, c.Fix.RelativeBearingDegrees)

	s.latestMu.Lock()
	s.latest = &c
	s.latestMu.Unlock()

	for _, ns := range s.sinks {
		if err := ns.sink.Publish(c); err != nil {
			s.sinkErrors.Add(1)
			monitoring.Logf("sink %s: failed to publish correction %s: %v", ns.name, c.ID, err)
		}
	}
	return c, true
}

// Latest returns the most recent correction.
func (s *Service) Latest() (fusion.Correction, bool) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	if s.latest == nil {
		return fusion.Correction{}, false
	}
	return *s.latest, true
}

// Stats returns a copy of the counters.
func (s *Service) Stats() Stats {
	return Stats{
		PlatformUpdates: s.platformUpdates.Load(),
		PixelEvents:     s.pixelEvents.Load(),
		NotReady:        s.notReady.Load(),
		Corrections:     s.corrections.Load(),
		SinkErrors:      s.sinkErrors.Load(),
		RecorderErrors:  s.recorderErrors.Load(),
	}
}

// Run consumes both feeds, each in its own goroutine, until ctx is done or
// both channels are closed. A nil channel is treated as an absent feed.
func (s *Service) Run(ctx context.Context, platform <-chan fusion.PlatformState, pixels <-chan geometry.PixelOffset) error {
	var wg sync.WaitGroup

	if platform != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case state, ok := <-platform:
					if !ok {
						return
					}
					s.HandlePlatformState(state)
				}
			}
		}()
	}

	if pixels != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case offset, ok := <-pixels:
					if !ok {
						return
					}
					s.HandlePixelOffset(offset)
				}
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// LogStats logs the counters every interval until ctx is done.
func (s *Service) LogStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Stats()
			if st == last {
				continue
			}
			monitoring.Logf("tracking: %d platform updates, %d pixel events, %d not ready, %d corrections, %d sink errors",
				st.PlatformUpdates, st.PixelEvents, st.NotReady, st.Corrections, st.SinkErrors)
			last = st
		}
	}
}
