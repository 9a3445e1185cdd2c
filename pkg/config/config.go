// Package config provides configuration loading and management for mrisync.
// It handles loading the synchronizer layout from YAML files, validating it
// and providing default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mrisync/internal/models"
	"mrisync/pkg/synchronizer"
	"mrisync/pkg/timeline"
)

// InputConfig describes one input timeline
type InputConfig struct {
	// Key names the timeline
	Key string `yaml:"key"`

	// Delay is the input delay in milliseconds, subtracted from the newest
	// timestamp when computing the reference
	Delay int64 `yaml:"delay,omitempty"`

	// Elements is the number of element slots per sample
	Elements int `yaml:"elements,omitempty"`

	// Capacity is the number of samples retained by the timeline
	Capacity int `yaml:"capacity,omitempty"`

	// Width, Height and PixelFormat describe frame timelines only
	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
	PixelFormat string `yaml:"pixelFormat,omitempty"`
}

// OutputConfig describes one synchronized output
type OutputConfig struct {
	// Key names the output
	Key string `yaml:"key"`

	// TL is the index of the source input. It defaults to the position of
	// the output in its list.
	TL *int `yaml:"tl,omitempty"`

	// Index is the element index within the source samples
	Index int `yaml:"index,omitempty"`

	// SendStatus enables synchronized/unsynchronized events for this output
	SendStatus bool `yaml:"sendStatus,omitempty"`

	// Delay is the output delay in milliseconds
	Delay int64 `yaml:"delay,omitempty"`
}

// Source returns the input index of an output found at position
func (o OutputConfig) Source(position int) int {
	if o.TL != nil {
		return *o.TL
	}
	return position
}

// Binding converts the output configuration into an engine binding
func (o OutputConfig) Binding(position int) synchronizer.Binding {
	return synchronizer.Binding{
		Input:      o.Source(position),
		Element:    o.Index,
		SendStatus: o.SendStatus,
		Delay:      o.Delay,
	}
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tolerance is the maximum accepted distance between a selected sample
	// and its target timestamp, in milliseconds
	Tolerance int64 `yaml:"tolerance"`

	// LegacyAutoSync synchronizes periodically every TimeStep once data has
	// been received, without waiting for an explicit request
	LegacyAutoSync bool `yaml:"legacyAutoSync"`

	// TimeStep is the period in milliseconds of the legacy auto sync timer
	TimeStep int64 `yaml:"timeStep"`

	// Policy is the reference policy, "minimum" or "window"
	Policy string `yaml:"policy"`

	Inputs struct {
		Frames   []InputConfig `yaml:"frames"`
		Matrices []InputConfig `yaml:"matrices"`
	} `yaml:"inputs"`

	Outputs struct {
		Frames   []OutputConfig `yaml:"frames"`
		Matrices []OutputConfig `yaml:"matrices"`
	} `yaml:"outputs"`

	// Journal parameters
	Journal struct {
		// Path is the SQLite database file, empty to disable the journal
		Path string `yaml:"path"`
	} `yaml:"journal"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is text or json
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tolerance = synchronizer.DefaultTolerance
	cfg.LegacyAutoSync = false
	cfg.TimeStep = 33
	cfg.Policy = string(synchronizer.PolicyMinimum)

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("error validating config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks the cross references of the configuration: output sources
// must exist and element indices must fit the source timelines.
func (c *Config) Validate() error {
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %d", c.Tolerance)
	}
	if c.LegacyAutoSync && c.TimeStep <= 0 {
		return fmt.Errorf("timeStep must be positive with legacyAutoSync, got %d", c.TimeStep)
	}
	if _, err := synchronizer.ParsePolicy(c.Policy); err != nil {
		return err
	}

	for i, in := range c.Inputs.Frames {
		if _, err := in.FrameFormat(); err != nil {
			return fmt.Errorf("frame input %d (%s): %w", i, in.Key, err)
		}
	}

	check := func(kind string, outputs []OutputConfig, inputs []InputConfig) error {
		for i, out := range outputs {
			src := out.Source(i)
			if src < 0 || src >= len(inputs) {
				return fmt.Errorf("%s output %d (%s): %w: tl %d", kind, i, out.Key, synchronizer.ErrUnknownInput, src)
			}
			if out.Index < 0 || out.Index >= inputs[src].ElementCount() {
				return fmt.Errorf("%s output %d (%s): %w: index %d", kind, i, out.Key, synchronizer.ErrElementOutOfRange, out.Index)
			}
		}
		return nil
	}
	if err := check("frame", c.Outputs.Frames, c.Inputs.Frames); err != nil {
		return err
	}
	return check("matrix", c.Outputs.Matrices, c.Inputs.Matrices)
}

// ElementCount returns the number of element slots, at least one
func (in InputConfig) ElementCount() int {
	if in.Elements < 1 {
		return 1
	}
	return in.Elements
}

// TimelineCapacity returns the configured capacity or the timeline default
func (in InputConfig) TimelineCapacity() int {
	if in.Capacity < 1 {
		return timeline.DefaultCapacity
	}
	return in.Capacity
}

// FrameFormat returns the geometry of a frame input
func (in InputConfig) FrameFormat() (models.FrameFormat, error) {
	pf, err := ParsePixelFormat(in.PixelFormat)
	if err != nil {
		return models.FrameFormat{}, err
	}
	if in.Width <= 0 || in.Height <= 0 {
		return models.FrameFormat{}, fmt.Errorf("invalid frame size %dx%d", in.Width, in.Height)
	}
	return models.FrameFormat{Width: in.Width, Height: in.Height, PixelFormat: pf}, nil
}

// ParsePixelFormat converts a pixel format name. An empty name means gray.
func ParsePixelFormat(name string) (models.PixelFormat, error) {
	if name == "" {
		return models.GrayScale, nil
	}
	for _, pf := range []models.PixelFormat{models.GrayScale, models.RGB, models.BGR, models.RGBA, models.BGRA} {
		if pf.String() == name {
			return pf, nil
		}
	}
	return models.Undefined, fmt.Errorf("unknown pixel format %q", name)
}
