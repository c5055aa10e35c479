package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/SnapGo/internal/protocol"
)

// SerialConfig describes the UART link to the camera (8-N-1 framing).
type SerialConfig struct {
	Device        string `yaml:"device"`          // e.g. /dev/serial0 on a Raspberry Pi
	Baud          int    `yaml:"baud"`            // 9600, 19200, 38400, 57600 or 115200
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // deadline for one reply
	Mock          bool   `yaml:"mock"`            // use simulated camera (true=dev/test, false=real hardware)
}

// CameraConfig holds VC0706 settings applied at startup.
type CameraConfig struct {
	ImageSize    string `yaml:"image_size"`     // "640x480", "320x240" or "160x120"
	Compression  int    `yaml:"compression"`    // JPEG ratio 1-255; 0 keeps the camera default
	ChunkSize    int    `yaml:"chunk_size"`     // bytes per read command, multiple of 4
	ResetDelayMs int    `yaml:"reset_delay_ms"` // settle time after reset
	MotionPollMs int    `yaml:"motion_poll_ms"` // interval between motion polls
}

// CaptureConfig describes where downloaded images go.
type CaptureConfig struct {
	OutDir      string `yaml:"out_dir"`      // directory for saved images
	FilePattern string `yaml:"file_pattern"` // Go time layout for filenames
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path points at a YAML file inside a
// configs/ directory and contains no traversal elements.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("config path %q contains traversal elements", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension, got %q", path)
	}
	clean := filepath.Clean(path)
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory, got %q", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Serial.Device == "" && !cfg.Serial.Mock {
		return nil, fmt.Errorf("serial.device is required unless serial.mock is true")
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 38400 // factory default of the module
	}
	if !supportedBaud(cfg.Serial.Baud) {
		return nil, fmt.Errorf("serial.baud must be one of %v, got %d",
			protocol.SupportedBauds(), cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeoutMs <= 0 {
		cfg.Serial.ReadTimeoutMs = 500
	}

	if cfg.Camera.ImageSize == "" {
		cfg.Camera.ImageSize = "640x480"
	}
	if _, err := protocol.ParseImageSize(cfg.Camera.ImageSize); err != nil {
		return nil, fmt.Errorf("camera.image_size: %w", err)
	}
	if cfg.Camera.Compression < 0 || cfg.Camera.Compression > 255 {
		return nil, fmt.Errorf("camera.compression must be between 0 and 255, got %d", cfg.Camera.Compression)
	}
	if cfg.Camera.ChunkSize == 0 {
		cfg.Camera.ChunkSize = 128
	}
	if cfg.Camera.ChunkSize < 4 || cfg.Camera.ChunkSize%4 != 0 {
		return nil, fmt.Errorf("camera.chunk_size must be a positive multiple of 4, got %d", cfg.Camera.ChunkSize)
	}
	if cfg.Camera.ResetDelayMs <= 0 {
		cfg.Camera.ResetDelayMs = 1000 // reset settle time from the datasheet
	}
	if cfg.Camera.MotionPollMs <= 0 {
		cfg.Camera.MotionPollMs = 500
	}

	if cfg.Capture.OutDir == "" {
		cfg.Capture.OutDir = "photos"
	}
	if cfg.Capture.FilePattern == "" {
		cfg.Capture.FilePattern = "snap-20060102-150405.jpg"
	}

	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	return &cfg, nil
}

func supportedBaud(baud int) bool {
	for _, b := range protocol.SupportedBauds() {
		if b == baud {
			return true
		}
	}
	return false
}

// ReadTimeout returns the deadline for a single reply.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

// ResetDelay returns the settle time after a camera reset.
func (c *Config) ResetDelay() time.Duration {
	return time.Duration(c.Camera.ResetDelayMs) * time.Millisecond
}

// MotionPoll returns the interval between motion detection polls.
func (c *Config) MotionPoll() time.Duration {
	return time.Duration(c.Camera.MotionPollMs) * time.Millisecond
}

// ImageSizeCode returns the protocol code for the configured resolution.
func (c *Config) ImageSizeCode() byte {
	code, _ := protocol.ParseImageSize(c.Camera.ImageSize) // validated by Load
	return code
}

// OutPath builds the output filename for an image captured at t.
func (c *Config) OutPath(t time.Time) string {
	return filepath.Join(c.Capture.OutDir, t.Format(c.Capture.FilePattern))
}
