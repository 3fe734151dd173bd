package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CameraConfig
		wantErr bool
	}{
		{"default", DefaultCameraConfig(), false},
		{"zero fov", CameraConfig{0, 720, 1280}, true},
		{"negative fov", CameraConfig{-10, 720, 1280}, true},
		{"fov at 180", CameraConfig{180, 720, 1280}, true},
		{"fov just under 180", CameraConfig{179.9, 720, 1280}, false},
		{"zero width", CameraConfig{55, 0, 1280}, true},
		{"zero height", CameraConfig{55, 720, 0}, true},
		{"negative height", CameraConfig{55, 720, -1}, true},
		{"NaN fov", CameraConfig{math.NaN(), 720, 1280}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfiguration), "error should wrap ErrInvalidConfiguration: %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCameraConfig_AxisFOV(t *testing.T) {
	h, v := DefaultCameraConfig().AxisFOV()
	assert.InDelta(t, 0.8518755721019186, h, 1e-12)
	assert.InDelta(t, 0.4997595236619114, v, 1e-12)

	// A square sensor splits the diagonal evenly.
	h, v = CameraConfig{DiagonalFOVDegrees: 90, ResolutionWidth: 100, ResolutionHeight: 100}.AxisFOV()
	assert.InDelta(t, h, v, 1e-12)
}

func TestPixelToReal(t *testing.T) {
	cfg := DefaultCameraConfig()

	tests := []struct {
		name   string
		offset PixelOffset
		height float64
		want   RealOffset
	}{
		{"golden scenario", PixelOffset{-100, 180}, 30, RealOffset{-3.57, 2.11}},
		{"mirrored offset", PixelOffset{100, -180}, 30, RealOffset{3.57, -2.11}},
		{"centre pixel", PixelOffset{0, 0}, 30, RealOffset{0, 0}},
		{"right edge", PixelOffset{360, 0}, 30, RealOffset{13.61, 0}},
		{"bottom edge", PixelOffset{0, 640}, 30, RealOffset{0, 7.66}},
		{"zero height", PixelOffset{-100, 180}, 0, RealOffset{0, 0}},
		{"negative height is not rejected", PixelOffset{-100, 180}, -30, RealOffset{3.57, -2.11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PixelToReal(tt.offset, tt.height, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want.XMeters, got.XMeters+0) // +0 folds -0 to 0
			assert.Equal(t, tt.want.YMeters, got.YMeters+0)
		})
	}
}

func TestPixelToReal_CentreIsZeroForAnyConfig(t *testing.T) {
	configs := []CameraConfig{
		DefaultCameraConfig(),
		{DiagonalFOVDegrees: 1, ResolutionWidth: 1, ResolutionHeight: 1},
		{DiagonalFOVDegrees: 170, ResolutionWidth: 4096, ResolutionHeight: 2160},
	}
	for _, cfg := range configs {
		for _, h := range []float64{0, 1, 30, 120.5} {
			got, err := PixelToReal(PixelOffset{}, h, cfg)
			require.NoError(t, err)
			assert.Zero(t, got.XMeters)
			assert.Zero(t, got.YMeters)
		}
	}
}

func TestPixelToReal_EdgeIsFinite(t *testing.T) {
	cfgs := []CameraConfig{
		DefaultCameraConfig(),
		{DiagonalFOVDegrees: 179, ResolutionWidth: 1920, ResolutionHeight: 1080},
	}
	for _, cfg := range cfgs {
		edge := PixelOffset{X: cfg.ResolutionWidth / 2, Y: cfg.ResolutionHeight / 2}
		got, err := PixelToReal(edge, 30, cfg)
		require.NoError(t, err)
		assert.False(t, math.IsInf(got.XMeters, 0) || math.IsNaN(got.XMeters), "x not finite: %v", got.XMeters)
		assert.False(t, math.IsInf(got.YMeters, 0) || math.IsNaN(got.YMeters), "y not finite: %v", got.YMeters)
	}
}

func TestPixelToReal_InvalidConfig(t *testing.T) {
	_, err := PixelToReal(PixelOffset{1, 1}, 30, CameraConfig{DiagonalFOVDegrees: 55, ResolutionWidth: 720})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestRealToPolar(t *testing.T) {
	tests := []struct {
		name   string
		offset RealOffset
		want   PolarFix
	}{
		{"golden scenario", RealOffset{-3.57, 2.11}, PolarFix{120.58, 4.15}},
		{"reference direction", RealOffset{0, -5}, PolarFix{0, 5}},
		{"opposite direction", RealOffset{0, 5}, PolarFix{180, 5}},
		{"3-4-5 first quadrant", RealOffset{3, 4}, PolarFix{216.87, 5}},
		{"3-4-5 third quadrant", RealOffset{-3, -4}, PolarFix{36.87, 5}},
		{"origin", RealOffset{0, 0}, PolarFix{180, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RealToPolar(tt.offset))
		})
	}
}

func TestRealToPolar_Ranges(t *testing.T) {
	for x := -50.0; x <= 50; x += 2.5 {
		for y := -50.0; y <= 50; y += 2.5 {
			fix := RealToPolar(RealOffset{x, y})
			assert.GreaterOrEqual(t, fix.AzimuthDegrees, 0.0)
			assert.Less(t, fix.AzimuthDegrees, 360.0)
			assert.GreaterOrEqual(t, fix.DistanceMeters, 0.0)
			assert.InDelta(t, math.Sqrt(x*x+y*y), fix.DistanceMeters, 0.0051)
		}
	}
}

func TestRealToPolar_NearFullTurnFoldsToZero(t *testing.T) {
	// Just short of a full turn after rotation, which rounds up to 360.
	fix := RealToPolar(RealOffset{XMeters: 1e-6, YMeters: -100})
	assert.Equal(t, 0.0, fix.AzimuthDegrees)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 4.15, Round(4.146926572776518))
	assert.Equal(t, -3.57, Round(-3.5661375163439453))
	assert.Equal(t, 0.12, Round(0.125))
	assert.Equal(t, 0.0, RoundAngle(359.999))
	assert.Equal(t, 359.99, RoundAngle(359.991))
}

func TestRound_KeepsSignOfZero(t *testing.T) {
	assert.True(t, math.Signbit(Round(-0.001)))
	assert.True(t, math.Signbit(Round(math.Copysign(0, -1))))
	assert.False(t, math.Signbit(Round(0.004)))
}

func TestPixelToPolar_ZeroHeight(t *testing.T) {
	tests := []struct {
		name   string
		offset PixelOffset
		want   float64
	}{
		// x = +0, y = -0
		{"upper right", PixelOffset{X: 100, Y: -180}, 0},
		// x = -0, y = +0
		{"lower left", PixelOffset{X: -100, Y: 180}, 180},
		// x = -0, y = -0
		{"upper left", PixelOffset{X: -100, Y: -180}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ground, err := PixelToReal(tt.offset, 0, DefaultCameraConfig())
			require.NoError(t, err)
			fix := RealToPolar(ground)
			assert.Equal(t, tt.want, fix.AzimuthDegrees)
			assert.Equal(t, 0.0, fix.DistanceMeters)
		})
	}
}
