// Package api serves the tracker's HTTP status and control surface.
package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/optical.position/internal/db"
	"github.com/banshee-data/optical.position/internal/feed"
	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/geometry"
	"github.com/banshee-data/optical.position/internal/httputil"
	"github.com/banshee-data/optical.position/internal/serialmux"
	"github.com/banshee-data/optical.position/internal/tracking"
	"github.com/banshee-data/optical.position/internal/version"
)

// LatestStore returns the persisted readings. *db.DB implements it.
type LatestStore interface {
	LatestPlatformState() (db.PlatformStateRecord, error)
	LatestCorrection() (fusion.Correction, error)
}

// Server exposes a tracking.Service over HTTP.
type Server struct {
	service *tracking.Service
	store   LatestStore
	serial  serialmux.SerialMuxInterface
	history *History
	feeds   map[string]func() feed.StatsSnapshot
}

// Option configures a Server.
type Option func(*Server)

// WithStore serves persisted readings when the service holds none.
func WithStore(store LatestStore) Option {
	return func(s *Server) { s.store = store }
}

// WithSerial routes /api/command to the telemetry link.
func WithSerial(m serialmux.SerialMuxInterface) Option {
	return func(s *Server) { s.serial = m }
}

// WithHistory enables the correction chart.
func WithHistory(h *History) Option {
	return func(s *Server) { s.history = h }
}

// WithFeedStats reports a listener's counters under name in /api/stats.
func WithFeedStats(name string, stats func() feed.StatsSnapshot) Option {
	return func(s *Server) { s.feeds[name] = stats }
}

func NewServer(service *tracking.Service, opts ...Option) *Server {
	s := &Server{
		service: service,
		serial:  serialmux.NewDisabledSerialMux("none"),
		feeds:   make(map[string]func() feed.StatsSnapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/pixel", s.handlePixel)
	mux.HandleFunc("/api/correction", s.handleCorrection)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/command", s.handleCommand)
	s.attachDebugRoutes(mux)
	return mux
}

// stateResponse is the body of /api/state. State and UpdatedAt are omitted
// until the first reading arrives.
type stateResponse struct {
	Ready     bool                    `json:"ready"`
	State     *fusion.PlatformState   `json:"state,omitempty"`
	UpdatedAt *time.Time              `json:"updated_at,omitempty"`
	Stored    *db.PlatformStateRecord `json:"stored,omitempty"`
}

func newStateResponse(snap fusion.Snapshot) stateResponse {
	if !snap.Ready {
		return stateResponse{}
	}
	return stateResponse{Ready: true, State: &snap.State, UpdatedAt: &snap.UpdatedAt}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := newStateResponse(s.service.Fusion().Snapshot())
		if s.store != nil {
			rec, err := s.store.LatestPlatformState()
			switch {
			case err == nil:
				resp.Stored = &rec
			case !errors.Is(err, db.ErrNoReading):
				httputil.InternalServerError(w, err.Error())
				return
			}
		}
		httputil.WriteJSONOK(w, resp)
	case http.MethodPost:
		var state fusion.PlatformState
		if err := httputil.DecodeJSON(r, &state); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.service.HandlePlatformState(state)
		httputil.WriteJSONOK(w, newStateResponse(s.service.Fusion().Snapshot()))
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var offset geometry.PixelOffset
	if err := httputil.DecodeJSON(r, &offset); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	c, ok := s.service.HandlePixelOffset(offset)
	if !ok {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ready": false,
			"error": "no platform state received yet",
		})
		return
	}
	httputil.WriteJSONOK(w, c)
}

func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if c, ok := s.service.Latest(); ok {
		httputil.WriteJSONOK(w, c)
		return
	}
	if s.store != nil {
		c, err := s.store.LatestCorrection()
		if err == nil {
			httputil.WriteJSONOK(w, c)
			return
		}
		if !errors.Is(err, db.ErrNoReading) {
			httputil.InternalServerError(w, err.Error())
			return
		}
	}
	httputil.NotFound(w, "no correction computed yet")
}

// configResponse is the body of GET /api/config.
type configResponse struct {
	Camera               geometry.CameraConfig `json:"camera"`
	HorizontalFOVDegrees float64               `json:"horizontal_fov_degrees"`
	VerticalFOVDegrees   float64               `json:"vertical_fov_degrees"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	camera := s.service.Fusion().Camera()
	h, v := camera.AxisFOV()
	httputil.WriteJSONOK(w, configResponse{
		Camera:               camera,
		HorizontalFOVDegrees: geometry.RoundAngle(h * 180 / math.Pi),
		VerticalFOVDegrees:   geometry.RoundAngle(v * 180 / math.Pi),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	Tracking tracking.Stats                `json:"tracking"`
	Feeds    map[string]feed.StatsSnapshot `json:"feeds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statsResponse{
		Tracking: s.service.Stats(),
		Feeds:    make(map[string]feed.StatsSnapshot, len(s.feeds)),
	}
	for name, stats := range s.feeds {
		resp.Feeds[name] = stats()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.serial.SendCommand(command); err != nil {
		if errors.Is(err, serialmux.ErrSerialDisabled) {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to send command: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": command})
}
