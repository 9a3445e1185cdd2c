package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mrisync/internal/models"
	"mrisync/pkg/synchronizer"
)

const sampleConfig = `
tolerance: 10
legacyAutoSync: true
policy: window
inputs:
  frames:
    - key: frameTL1
      width: 4
      height: 2
      pixelFormat: rgb
      delay: 2
    - key: frameTL2
      width: 4
      height: 2
  matrices:
    - key: matrixTL1
      elements: 3
      capacity: 16
outputs:
  frames:
    - key: frame1
      sendStatus: true
    - key: frame2
      tl: 0
      delay: -3
  matrices:
    - key: matrix0
    - key: matrix2
      tl: 0
      index: 2
journal:
  path: /tmp/journal.db
logging:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// TestDefaultConfig verifies the documented defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Tolerance != 5 {
		t.Errorf("Expected tolerance 5, got %d", cfg.Tolerance)
	}
	if cfg.LegacyAutoSync {
		t.Error("Expected legacyAutoSync to be false")
	}
	if cfg.Policy != "minimum" {
		t.Errorf("Expected policy minimum, got %s", cfg.Policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

// TestLoadConfigMissingFile verifies that a missing file yields the defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Tolerance != synchronizer.DefaultTolerance {
		t.Errorf("Expected default tolerance, got %d", cfg.Tolerance)
	}
}

// TestLoadConfig verifies parsing and output defaults
func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Tolerance != 10 || !cfg.LegacyAutoSync || cfg.Policy != "window" {
		t.Errorf("Unexpected top level values: %+v", cfg)
	}
	if len(cfg.Inputs.Frames) != 2 || len(cfg.Inputs.Matrices) != 1 {
		t.Fatalf("Expected 2 frame and 1 matrix inputs, got %d and %d",
			len(cfg.Inputs.Frames), len(cfg.Inputs.Matrices))
	}

	format, err := cfg.Inputs.Frames[0].FrameFormat()
	if err != nil {
		t.Fatalf("FrameFormat failed: %v", err)
	}
	want := models.FrameFormat{Width: 4, Height: 2, PixelFormat: models.RGB}
	if format != want {
		t.Errorf("Expected format %+v, got %+v", want, format)
	}
	if f, _ := cfg.Inputs.Frames[1].FrameFormat(); f.PixelFormat != models.GrayScale {
		t.Errorf("Expected gray default, got %s", f.PixelFormat)
	}

	// tl defaults to the output position
	b := cfg.Outputs.Frames[0].Binding(0)
	if b.Input != 0 || !b.SendStatus || b.Element != 0 || b.Delay != 0 {
		t.Errorf("Unexpected frame1 binding %+v", b)
	}
	b = cfg.Outputs.Frames[1].Binding(1)
	if b.Input != 0 || b.SendStatus || b.Delay != -3 {
		t.Errorf("Unexpected frame2 binding %+v", b)
	}
	b = cfg.Outputs.Matrices[1].Binding(1)
	if b.Input != 0 || b.Element != 2 {
		t.Errorf("Unexpected matrix2 binding %+v", b)
	}

	m := cfg.Inputs.Matrices[0]
	if m.ElementCount() != 3 || m.TimelineCapacity() != 16 {
		t.Errorf("Expected 3 elements and capacity 16, got %d and %d", m.ElementCount(), m.TimelineCapacity())
	}
	if cfg.Journal.Path != "/tmp/journal.db" {
		t.Errorf("Expected journal path, got %q", cfg.Journal.Path)
	}
}

// TestLoadConfigSchemaErrors verifies that malformed documents are rejected
func TestLoadConfigSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "tolerance: 5\nfoo: bar\n"},
		{"wrong type", "tolerance: soon\n"},
		{"negative tolerance", "tolerance: -1\n"},
		{"unknown policy", "policy: newest\n"},
		{"frame input without size", "inputs:\n  frames:\n    - key: a\n"},
		{"output without key", "outputs:\n  matrices:\n    - tl: 0\n"},
		{"bad log level", "logging:\n  level: loud\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Error("Expected an error, got nil")
			}
		})
	}
}

// TestValidateCrossReferences verifies binding checks against inputs
func TestValidateCrossReferences(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Inputs.Matrices = []InputConfig{{Key: "m", Elements: 2}}
	cfg.Outputs.Matrices = []OutputConfig{{Key: "a"}, {Key: "b"}}

	// Second output defaults to tl 1, which does not exist
	if err := cfg.Validate(); !errors.Is(err, synchronizer.ErrUnknownInput) {
		t.Errorf("Expected ErrUnknownInput, got %v", err)
	}

	tl := 0
	cfg.Outputs.Matrices[1] = OutputConfig{Key: "b", TL: &tl, Index: 2}
	if err := cfg.Validate(); !errors.Is(err, synchronizer.ErrElementOutOfRange) {
		t.Errorf("Expected ErrElementOutOfRange, got %v", err)
	}

	cfg.Outputs.Matrices[1].Index = 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

// TestSaveConfig verifies that a saved configuration loads back
func TestSaveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tolerance = 7
	cfg.Inputs.Frames = []InputConfig{{Key: "f", Width: 2, Height: 2, PixelFormat: "bgra"}}
	cfg.Outputs.Frames = []OutputConfig{{Key: "out", SendStatus: true}}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Tolerance != 7 || len(loaded.Outputs.Frames) != 1 || !loaded.Outputs.Frames[0].SendStatus {
		t.Errorf("Unexpected loaded config %+v", loaded)
	}
}

// TestNewLogger verifies the logging section
func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "key", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info message to be filtered")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("Expected JSON warn record, got %q", out)
	}

	cfg.Logging.Format = "xml"
	if _, err := cfg.NewLogger(&buf); err == nil {
		t.Error("Expected error for unknown format")
	}
}
