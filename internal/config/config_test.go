package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

// ---------- Load ----------

const minimalConfig = `
serial:
  device: /dev/serial0
`

func TestLoad_MinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Baud != 38400 {
		t.Errorf("baud = %d, want 38400", cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeoutMs != 500 {
		t.Errorf("read_timeout_ms = %d, want 500", cfg.Serial.ReadTimeoutMs)
	}
	if cfg.Camera.ImageSize != "640x480" {
		t.Errorf("image_size = %q, want 640x480", cfg.Camera.ImageSize)
	}
	if cfg.Camera.ChunkSize != 128 {
		t.Errorf("chunk_size = %d, want 128", cfg.Camera.ChunkSize)
	}
	if cfg.Camera.ResetDelayMs != 1000 {
		t.Errorf("reset_delay_ms = %d, want 1000", cfg.Camera.ResetDelayMs)
	}
	if cfg.Capture.OutDir != "photos" {
		t.Errorf("out_dir = %q, want photos", cfg.Capture.OutDir)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
serial:
  device: /dev/ttyAMA0
  baud: 115200
  read_timeout_ms: 750
camera:
  image_size: 320x240
  compression: 54
  chunk_size: 256
  reset_delay_ms: 1500
  motion_poll_ms: 250
capture:
  out_dir: /var/lib/snapgo
  file_pattern: img-20060102-150405.jpg
defaults:
  debug_level: 3
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("baud = %d, want 115200", cfg.Serial.Baud)
	}
	if cfg.Camera.Compression != 54 {
		t.Errorf("compression = %d, want 54", cfg.Camera.Compression)
	}
	if cfg.ReadTimeout() != 750*time.Millisecond {
		t.Errorf("ReadTimeout = %v, want 750ms", cfg.ReadTimeout())
	}
	if cfg.ResetDelay() != 1500*time.Millisecond {
		t.Errorf("ResetDelay = %v, want 1.5s", cfg.ResetDelay())
	}
	if cfg.MotionPoll() != 250*time.Millisecond {
		t.Errorf("MotionPoll = %v, want 250ms", cfg.MotionPoll())
	}
	if cfg.Defaults.DebugLevel != 3 {
		t.Errorf("debug_level = %d, want 3", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_MockNeedsNoDevice(t *testing.T) {
	cfg, err := Load(writeConfig(t, "serial:\n  mock: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Serial.Mock {
		t.Error("mock = false, want true")
	}
}

func TestLoad_MissingDevice(t *testing.T) {
	if _, err := Load(writeConfig(t, "serial: {}\n")); err == nil {
		t.Error("expected error for missing device, got nil")
	}
}

func TestLoad_UnsupportedBaud(t *testing.T) {
	_, err := Load(writeConfig(t, "serial:\n  device: /dev/serial0\n  baud: 14400\n"))
	if err == nil {
		t.Error("expected error for unsupported baud, got nil")
	}
}

func TestLoad_BadImageSize(t *testing.T) {
	_, err := Load(writeConfig(t, `
serial:
  device: /dev/serial0
camera:
  image_size: 1024x768
`))
	if err == nil {
		t.Error("expected error for unsupported image size, got nil")
	}
}

func TestLoad_BadChunkSize(t *testing.T) {
	for _, chunk := range []string{"-8", "3", "30"} {
		_, err := Load(writeConfig(t, `
serial:
  device: /dev/serial0
camera:
  chunk_size: `+chunk+"\n"))
		if err == nil {
			t.Errorf("expected error for chunk_size %s, got nil", chunk)
		}
	}
}

func TestLoad_BadCompression(t *testing.T) {
	_, err := Load(writeConfig(t, `
serial:
  device: /dev/serial0
camera:
  compression: 300
`))
	if err == nil {
		t.Error("expected error for compression > 255, got nil")
	}
}

func TestLoad_BadDebugLevel(t *testing.T) {
	_, err := Load(writeConfig(t, `
serial:
  device: /dev/serial0
defaults:
  debug_level: 9
`))
	if err == nil {
		t.Error("expected error for debug_level 9, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "serial: [not a map\n")); err == nil {
		t.Error("expected error for invalid yaml, got nil")
	}
}

func TestImageSizeCode(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
serial:
  device: /dev/serial0
camera:
  image_size: 160x120
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ImageSizeCode() != 0x22 {
		t.Errorf("code = 0x%02x, want 0x22", cfg.ImageSizeCode())
	}
}

func TestOutPath(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ts := time.Date(2026, 8, 25, 13, 37, 0, 0, time.UTC)
	path := cfg.OutPath(ts)
	if !strings.HasPrefix(path, "photos"+string(filepath.Separator)) {
		t.Errorf("path %q not under photos/", path)
	}
	if !strings.HasSuffix(path, "snap-20260825-133700.jpg") {
		t.Errorf("path %q does not encode the timestamp", path)
	}
}
