// Package config loads the tracker's JSON configuration file.
//
// Every field is optional; the Get* accessors fall back to the defaults
// below, so a partial (or empty) file is valid.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/optical.position/internal/geometry"
	"github.com/banshee-data/optical.position/internal/serialmux"
)

// DefaultConfigPath is the example configuration shipped with the repository.
const DefaultConfigPath = "config/tracker.example.json"

const (
	DefaultListen         = ":8080"
	DefaultPixelListen    = ":5600"
	DefaultPlatformListen = ":5601"
	DefaultSerialPort     = "/dev/ttyACM0"
	DefaultDBPath         = "optical_position.db"
	DefaultLogInterval    = time.Minute

	PlatformSourceUDP      = "udp"
	PlatformSourceSerial   = "serial"
	PlatformSourceDisabled = "disabled"
)

// CameraSection mirrors geometry.CameraConfig with optional fields.
type CameraSection struct {
	DiagonalFOVDegrees *float64 `json:"diagonal_fov_degrees,omitempty"`
	ResolutionWidth    *int     `json:"resolution_width,omitempty"`
	ResolutionHeight   *int     `json:"resolution_height,omitempty"`
}

// TrackerConfig is the root of the configuration file.
type TrackerConfig struct {
	Camera *CameraSection `json:"camera,omitempty"`

	Listen         *string `json:"listen,omitempty"`          // HTTP status API
	PixelListen    *string `json:"pixel_listen,omitempty"`    // UDP pixel offsets
	PlatformListen *string `json:"platform_listen,omitempty"` // UDP platform readings

	PlatformSource     *string                `json:"platform_source,omitempty"` // udp, serial or disabled
	SerialPort         *string                `json:"serial_port,omitempty"`
	Serial             *serialmux.PortOptions `json:"serial,omitempty"`
	SerialInitCommands []string               `json:"serial_init_commands,omitempty"`

	CorrectionForward *string `json:"correction_forward,omitempty"` // host:port, empty disables
	DBPath            *string `json:"db_path,omitempty"`
	LogInterval       *string `json:"log_interval,omitempty"` // duration string like "60s"
}

func ptrString(v string) *string { return &v }

// EmptyTrackerConfig returns a config with every field unset.
func EmptyTrackerConfig() *TrackerConfig {
	return &TrackerConfig{}
}

// LoadTrackerConfig reads and validates a JSON config file. The path must end
// in .json and the file must be under 1MB.
func LoadTrackerConfig(path string) (*TrackerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *TrackerConfig) Validate() error {
	if _, err := c.CameraConfig(); err != nil {
		return err
	}

	if c.PlatformSource != nil {
		switch *c.PlatformSource {
		case PlatformSourceUDP, PlatformSourceSerial, PlatformSourceDisabled:
		default:
			return fmt.Errorf("platform_source must be one of udp, serial or disabled, got %q", *c.PlatformSource)
		}
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}

	if c.LogInterval != nil && *c.LogInterval != "" {
		d, err := time.ParseDuration(*c.LogInterval)
		if err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("log_interval must be positive, got %s", d)
		}
	}

	if c.CorrectionForward != nil && *c.CorrectionForward != "" && !strings.Contains(*c.CorrectionForward, ":") {
		return fmt.Errorf("correction_forward must be host:port, got %q", *c.CorrectionForward)
	}
	return nil
}

// CameraConfig returns the camera section with defaults applied. The result
// is validated; a bad camera wraps geometry.ErrInvalidConfiguration.
func (c *TrackerConfig) CameraConfig() (geometry.CameraConfig, error) {
	cam := geometry.DefaultCameraConfig()
	if c.Camera != nil {
		if c.Camera.DiagonalFOVDegrees != nil {
			cam.DiagonalFOVDegrees = *c.Camera.DiagonalFOVDegrees
		}
		if c.Camera.ResolutionWidth != nil {
			cam.ResolutionWidth = *c.Camera.ResolutionWidth
		}
		if c.Camera.ResolutionHeight != nil {
			cam.ResolutionHeight = *c.Camera.ResolutionHeight
		}
	}
	if err := cam.Validate(); err != nil {
		return geometry.CameraConfig{}, fmt.Errorf("camera: %w", err)
	}
	return cam, nil
}

func stringOr(p *string, def string) string {
	if p != nil && *p != "" {
		return *p
	}
	return def
}

// GetListen returns the HTTP listen address.
func (c *TrackerConfig) GetListen() string { return stringOr(c.Listen, DefaultListen) }

// GetPixelListen returns the UDP address for pixel offsets.
func (c *TrackerConfig) GetPixelListen() string { return stringOr(c.PixelListen, DefaultPixelListen) }

// GetPlatformListen returns the UDP address for platform readings.
func (c *TrackerConfig) GetPlatformListen() string {
	return stringOr(c.PlatformListen, DefaultPlatformListen)
}

// GetPlatformSource returns where platform readings come from.
func (c *TrackerConfig) GetPlatformSource() string {
	return stringOr(c.PlatformSource, PlatformSourceUDP)
}

func (c *TrackerConfig) GetSerialPort() string { return stringOr(c.SerialPort, DefaultSerialPort) }

// GetSerialOptions returns the serial options, normalised.
func (c *TrackerConfig) GetSerialOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	if n, err := opts.Normalize(); err == nil {
		return n
	}
	return opts
}

// GetCorrectionForward returns the correction destination, or "" when
// forwarding is disabled.
func (c *TrackerConfig) GetCorrectionForward() string {
	if c.CorrectionForward == nil {
		return ""
	}
	return *c.CorrectionForward
}

func (c *TrackerConfig) GetDBPath() string { return stringOr(c.DBPath, DefaultDBPath) }

// GetLogInterval returns how often feed statistics are logged.
func (c *TrackerConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return DefaultLogInterval
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil || d <= 0 {
		return DefaultLogInterval
	}
	return d
}

// SetString overwrites one string field by its JSON name. It is used to
// apply command line flags on top of the file.
func (c *TrackerConfig) SetString(name, value string) error {
	switch name {
	case "listen":
		c.Listen = ptrString(value)
	case "pixel_listen":
		c.PixelListen = ptrString(value)
	case "platform_listen":
		c.PlatformListen = ptrString(value)
	case "platform_source":
		c.PlatformSource = ptrString(value)
	case "serial_port":
		c.SerialPort = ptrString(value)
	case "correction_forward":
		c.CorrectionForward = ptrString(value)
	case "db_path":
		c.DBPath = ptrString(value)
	case "log_interval":
		c.LogInterval = ptrString(value)
	default:
		return fmt.Errorf("unknown config field %q", name)
	}
	return nil
}
