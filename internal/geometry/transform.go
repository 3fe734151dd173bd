// Package geometry converts pixel offsets reported by the downward camera into
// ground-plane offsets and polar fixes relative to the platform.
//
// Everything in this package is a pure function of its inputs and safe for
// concurrent use.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// ErrInvalidConfiguration is returned when a CameraConfig cannot be used to
// derive per-pixel angles.
var ErrInvalidConfiguration = errors.New("invalid camera configuration")

// precision is the number of decimal places kept on every derived quantity
// (centimetres for distances, hundredths of a degree for angles).
const precision = 2

// PixelOffset is the signed displacement of the tracked point from the image
// centre. Offsets outside the frame are valid.
type PixelOffset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CameraConfig is the fixed optical configuration of the tracking camera.
type CameraConfig struct {
	DiagonalFOVDegrees float64 `json:"diagonal_fov_degrees"`
	ResolutionWidth    int     `json:"resolution_width"`
	ResolutionHeight   int     `json:"resolution_height"`
}

// DefaultCameraConfig returns the configuration of the stock tracking camera.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		DiagonalFOVDegrees: 55,
		ResolutionWidth:    720,
		ResolutionHeight:   1280,
	}
}

// Validate checks the configuration can be used for the transform.
func (c CameraConfig) Validate() error {
	if !(c.DiagonalFOVDegrees > 0 && c.DiagonalFOVDegrees < 180) {
		return fmt.Errorf("%w: diagonal_fov_degrees must be in (0, 180), got %v", ErrInvalidConfiguration, c.DiagonalFOVDegrees)
	}
	if c.ResolutionWidth <= 0 {
		return fmt.Errorf("%w: resolution_width must be positive, got %d", ErrInvalidConfiguration, c.ResolutionWidth)
	}
	if c.ResolutionHeight <= 0 {
		return fmt.Errorf("%w: resolution_height must be positive, got %d", ErrInvalidConfiguration, c.ResolutionHeight)
	}
	return nil
}

// AxisFOV splits the diagonal field of view into horizontal and vertical
// components (radians) using the resolution aspect ratio.
func (c CameraConfig) AxisFOV() (horizontal, vertical float64) {
	halfDiagonal := c.DiagonalFOVDegrees * math.Pi / 180 / 2
	aspect := float64(c.ResolutionWidth) / float64(c.ResolutionHeight)

	horizontal = 2 * math.Atan(math.Tan(halfDiagonal)/math.Sqrt(1+aspect*aspect))
	vertical = 2 * math.Atan(math.Tan(halfDiagonal)/math.Sqrt(1+(1/aspect)*(1/aspect)))
	return horizontal, vertical
}

// RealOffset is a horizontal offset in metres in the plane perpendicular to the
// platform's vertical axis. X follows the image width, Y the image height.
type RealOffset struct {
	XMeters float64 `json:"x_m"`
	YMeters float64 `json:"y_m"`
}

// PolarFix is the bearing and distance from the platform to the ground
// projection of the tracked point.
type PolarFix struct {
	AzimuthDegrees float64 `json:"azimuth_deg"`
	DistanceMeters float64 `json:"distance_m"`
}

// PixelToReal projects a pixel offset onto the ground plane for a camera at
// heightMeters above the target. A rectilinear lens is assumed with offsets
// measured from the image centre. A negative height yields a mirrored offset;
// callers are responsible for supplying a physical height.
func PixelToReal(offset PixelOffset, heightMeters float64, cfg CameraConfig) (RealOffset, error) {
	if err := cfg.Validate(); err != nil {
		return RealOffset{}, err
	}

	hfov, vfov := cfg.AxisFOV()
	radPerPixelX := hfov / float64(cfg.ResolutionWidth)
	radPerPixelY := vfov / float64(cfg.ResolutionHeight)

	angleX := float64(offset.X) * radPerPixelX
	angleY := float64(offset.Y) * radPerPixelY

	return RealOffset{
		XMeters: Round(heightMeters * math.Tan(angleX)),
		YMeters: Round(heightMeters * math.Tan(angleY)),
	}, nil
}

// RealToPolar converts a ground-plane offset to a polar fix. The azimuth is
// atan2(x, y) rotated by 180 degrees so that a point at (0, -d) lies at 0.
func RealToPolar(offset RealOffset) PolarFix {
	distance := math.Hypot(offset.XMeters, offset.YMeters)

	azimuth := math.Atan2(offset.XMeters, offset.YMeters)*180/math.Pi - 180
	if azimuth < 0 {
		azimuth += 360
	}

	return PolarFix{
		AzimuthDegrees: RoundAngle(azimuth),
		DistanceMeters: Round(distance),
	}
}

// RoundAngle rounds an angle already wrapped into [0, 360) and folds a value
// that rounds up to exactly 360 back to 0. Other values are left alone.
func RoundAngle(deg float64) float64 {
	r := Round(deg)
	if r == 360 {
		return 0
	}
	return r
}

// Round rounds v to two decimal places, ties to even. A value that rounds to
// zero keeps the sign of v so that RealToPolar places (0, -0) at azimuth 0.
func Round(v float64) float64 {
	r := scalar.RoundEven(v, precision)
	if r == 0 {
		return math.Copysign(0, v)
	}
	return r
}
