// Package feed moves platform readings, pixel offsets and corrections between
// the tracker and the processes around it.
//
// Payloads are either textual tuples such as "(30, 90)" or small JSON objects.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/geometry"
)

// ErrMalformedPayload is returned for payloads that are neither a two-element
// tuple nor the expected JSON object.
var ErrMalformedPayload = errors.New("malformed payload")

const (
	PayloadTuple   = "tuple"
	PayloadJSON    = "json"
	PayloadUnknown = "unknown"
)

// ClassifyPayload returns the encoding of a payload.
func ClassifyPayload(payload string) string {
	p := strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(p, "(") && strings.HasSuffix(p, ")"):
		return PayloadTuple
	case strings.HasPrefix(p, "{"):
		return PayloadJSON
	default:
		return PayloadUnknown
	}
}

type platformJSON struct {
	HeightMeters   *float64 `json:"height_m"`
	HeadingDegrees *float64 `json:"heading_deg"`
}

// ParsePlatformState parses a "(height, heading)" tuple or a
// {"height_m": ..., "heading_deg": ...} object.
func ParsePlatformState(payload string) (fusion.PlatformState, error) {
	switch ClassifyPayload(payload) {
	case PayloadTuple:
		a, b, err := splitTuple(payload)
		if err != nil {
			return fusion.PlatformState{}, err
		}
		height, err := parseFinite("height", a)
		if err != nil {
			return fusion.PlatformState{}, err
		}
		heading, err := parseFinite("heading", b)
		if err != nil {
			return fusion.PlatformState{}, err
		}
		return fusion.PlatformState{HeightMeters: height, HeadingDegrees: heading}, nil

	case PayloadJSON:
		var p platformJSON
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fusion.PlatformState{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if p.HeightMeters == nil || p.HeadingDegrees == nil {
			return fusion.PlatformState{}, fmt.Errorf("%w: height_m and heading_deg are required", ErrMalformedPayload)
		}
		return fusion.PlatformState{HeightMeters: *p.HeightMeters, HeadingDegrees: *p.HeadingDegrees}, nil
	}
	return fusion.PlatformState{}, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
}

// parseFinite is strconv.ParseFloat without the NaN and Inf spellings.
func parseFinite(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrMalformedPayload, name, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s %q is not finite", ErrMalformedPayload, name, s)
	}
	return v, nil
}

type pixelJSON struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// ParsePixelOffset parses an "(x, y)" tuple of integers or a {"x": .., "y": ..}
// object.
func ParsePixelOffset(payload string) (geometry.PixelOffset, error) {
	switch ClassifyPayload(payload) {
	case PayloadTuple:
		a, b, err := splitTuple(payload)
		if err != nil {
			return geometry.PixelOffset{}, err
		}
		x, err := strconv.Atoi(a)
		if err != nil {
			return geometry.PixelOffset{}, fmt.Errorf("%w: x %q: %v", ErrMalformedPayload, a, err)
		}
		y, err := strconv.Atoi(b)
		if err != nil {
			return geometry.PixelOffset{}, fmt.Errorf("%w: y %q: %v", ErrMalformedPayload, b, err)
		}
		return geometry.PixelOffset{X: x, Y: y}, nil

	case PayloadJSON:
		var p pixelJSON
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return geometry.PixelOffset{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if p.X == nil || p.Y == nil {
			return geometry.PixelOffset{}, fmt.Errorf("%w: x and y are required", ErrMalformedPayload)
		}
		return geometry.PixelOffset{X: *p.X, Y: *p.Y}, nil
	}
	return geometry.PixelOffset{}, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
}

func splitTuple(payload string) (string, string, error) {
	inner := strings.TrimSpace(payload)
	inner = strings.TrimSuffix(strings.TrimPrefix(inner, "("), ")")
	parts := strings.Split(inner, ",")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: expected 2 elements, got %d in %q", ErrMalformedPayload, len(parts), payload)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// FormatCorrection renders a correction as a "(distance, bearing)" tuple.
func FormatCorrection(fix fusion.CorrectionFix) string {
	return formatTuple(fix.DistanceMeters, fix.RelativeBearingDegrees)
}

// FormatPlatformState renders a platform reading as a "(height, heading)" tuple.
func FormatPlatformState(s fusion.PlatformState) string {
	return formatTuple(s.HeightMeters, s.HeadingDegrees)
}

// FormatPixelOffset renders a pixel offset as an "(x, y)" tuple.
func FormatPixelOffset(o geometry.PixelOffset) string {
	return fmt.Sprintf("(%d, %d)", o.X, o.Y)
}

func formatTuple(a, b float64) string {
	return "(" + formatFloat(a) + ", " + formatFloat(b) + ")"
}

// formatFloat prints the shortest representation and always keeps a decimal
// point so that consumers can tell floats from integers.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
