// Package fusion combines the most recent platform height and heading with
// freshly tracked pixel offsets to produce steering corrections.
package fusion

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/optical.position/internal/geometry"
	"github.com/banshee-data/optical.position/internal/timeutil"
)

// PlatformState is the last known height above the target and compass heading
// of the platform. It is always replaced as a whole.
type PlatformState struct {
	HeightMeters   float64 `json:"height_m"`
	HeadingDegrees float64 `json:"heading_deg"`
}

// CorrectionFix is the distance to the tracked point and its bearing relative
// to the platform's current heading.
type CorrectionFix struct {
	DistanceMeters         float64 `json:"distance_m"`
	RelativeBearingDegrees float64 `json:"relative_bearing_deg"`
}

// Correction is one computed fix together with the inputs that produced it.
type Correction struct {
	ID         string               `json:"id"`
	Offset     geometry.PixelOffset `json:"offset"`
	State      PlatformState        `json:"state"`
	Fix        CorrectionFix        `json:"fix"`
	ComputedAt time.Time            `json:"computed_at"`
}

// Snapshot is a consistent copy of the fusion state for status reporting.
type Snapshot struct {
	Ready     bool          `json:"ready"`
	State     PlatformState `json:"state"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Fusion owns the platform state cell. UpdatePlatformState and
// ComputeCorrection may be called concurrently from separate feeds.
type Fusion struct {
	camera geometry.CameraConfig
	clock  timeutil.Clock

	mu        sync.RWMutex
	state     *PlatformState // nil until the first update
	updatedAt time.Time
}

// Option configures a Fusion.
type Option func(*Fusion)

// WithClock overrides the clock used to stamp state updates.
func WithClock(c timeutil.Clock) Option {
	return func(f *Fusion) { f.clock = c }
}

// New returns an uninitialised Fusion bound to the given camera. The camera
// configuration is validated once here.
func New(camera geometry.CameraConfig, opts ...Option) (*Fusion, error) {
	if err := camera.Validate(); err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}
	f := &Fusion{
		camera: camera,
		clock:  timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Camera returns the camera configuration the Fusion was built with.
func (f *Fusion) Camera() geometry.CameraConfig {
	return f.camera
}

// UpdatePlatformState overwrites the held platform state. Values are stored
// as received; a heading outside [0, 360) is not normalised. The returned time
// is the update time stored with this state, which a later Snapshot may no
// longer report if another update has landed in between.
func (f *Fusion) UpdatePlatformState(heightMeters, headingDegrees float64) time.Time {
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = &PlatformState{HeightMeters: heightMeters, HeadingDegrees: headingDegrees}
	f.updatedAt = now
	return now
}

// ComputeCorrection derives the correction for a pixel offset using the held
// platform state. It reports false, doing no work, until a platform state has
// been received.
func (f *Fusion) ComputeCorrection(offset geometry.PixelOffset) (CorrectionFix, bool) {
	c, ok := f.Correct(offset)
	return c.Fix, ok
}

// Correct is ComputeCorrection returning the full record: the offset, the
// platform state the fix was computed from and the computation time. The ID
// is left for the caller to assign.
func (f *Fusion) Correct(offset geometry.PixelOffset) (Correction, bool) {
	f.mu.RLock()
	if f.state == nil {
		f.mu.RUnlock()
		return Correction{}, false
	}
	state := *f.state
	f.mu.RUnlock()

	// camera was validated in New so PixelToReal cannot fail here.
	real, _ := geometry.PixelToReal(offset, state.HeightMeters, f.camera)
	polar := geometry.RealToPolar(real)

	return Correction{
		Offset: offset,
		State:  state,
		Fix: CorrectionFix{
			DistanceMeters:         polar.DistanceMeters,
			RelativeBearingDegrees: RelativeBearing(polar.AzimuthDegrees, state.HeadingDegrees),
		},
		ComputedAt: f.clock.Now(),
	}, true
}

// State returns the held platform state and whether one has been received.
func (f *Fusion) State() (PlatformState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state == nil {
		return PlatformState{}, false
	}
	return *f.state, true
}

// Snapshot returns the held state together with the time it was last updated.
func (f *Fusion) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state == nil {
		return Snapshot{}
	}
	return Snapshot{Ready: true, State: *f.state, UpdatedAt: f.updatedAt}
}

// RelativeBearing subtracts the platform heading from the target azimuth and
// wraps the result once in each direction, then rounds it to hundredths of a
// degree. Headings far outside [0, 360) are not fully normalised.
func RelativeBearing(targetAzimuth, platformHeading float64) float64 {
	bearing := targetAzimuth - platformHeading
	if bearing < 0 {
		bearing += 360
	} else if bearing >= 360 {
		bearing -= 360
	}
	return geometry.RoundAngle(bearing)
}
