// Package config resolves screenshot settings from defaults, a JSON file,
// the environment and flags, in that order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/encode"
)

const (
	Dir      = "go2tv-screenshot"
	FileName = "config.json"

	NotifyAuto     = "auto"
	NotifyDesktop  = "desktop"
	NotifyTerminal = "terminal"
	NotifyNone     = "none"

	DefaultDensityDPI   = 96
	DefaultFrameTimeout = 8 * time.Second
)

// Config holds every setting. In a layer, empty strings and nil pointers
// mean unset.
type Config struct {
	Format     string `json:"format,omitempty"`
	Quality    *int   `json:"quality,omitempty"`
	OutputDir  string `json:"output_dir,omitempty"`
	NamePrefix string `json:"name_prefix,omitempty"`
	DensityDPI int    `json:"density_dpi,omitempty"`
	Display    *int   `json:"display,omitempty"`
	Backend    string `json:"backend,omitempty"`
	Notify     string `json:"notify,omitempty"`
	Open       *bool  `json:"open,omitempty"`

	FrameTimeoutMS      *int `json:"frame_timeout_ms,omitempty"`
	PermissionTimeoutMS *int `json:"permission_timeout_ms,omitempty"`
}

func Int(v int) *int    { return &v }
func Bool(v bool) *bool { return &v }

// Defaults returns the base layer. OutputDir is <Pictures>/Screenshots.
func Defaults() Config {
	return Config{
		Format:              string(encode.DefaultFormat),
		Quality:             Int(encode.DefaultQuality),
		OutputDir:           DefaultOutputDir(),
		NamePrefix:          "Screenshot_",
		DensityDPI:          DefaultDensityDPI,
		Display:             Int(0),
		Backend:             string(capture.BackendAuto),
		Notify:              NotifyAuto,
		Open:                Bool(false),
		FrameTimeoutMS:      Int(int(DefaultFrameTimeout / time.Millisecond)),
		PermissionTimeoutMS: Int(0),
	}
}

// DefaultOutputDir is $XDG_PICTURES_DIR/Screenshots, falling back to
// ~/Pictures/Screenshots.
func DefaultOutputDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_PICTURES_DIR")); dir != "" {
		return filepath.Join(dir, "Screenshots")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Screenshots"
	}
	return filepath.Join(home, "Pictures", "Screenshots")
}

// DefaultPath is $XDG_CONFIG_HOME/go2tv-screenshot/config.json.
func DefaultPath() (string, error) {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		var err error
		base, err = os.UserConfigDir()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(base, Dir, FileName), nil
}

// LoadFile reads a JSON layer. It returns nil and no error when the file is
// absent.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// FromEnv returns the layer set by SCREENSHOT_* variables.
func FromEnv() *Config {
	var c Config
	c.Format = StringEnv("SCREENSHOT_FORMAT", "")
	c.OutputDir = StringEnv("SCREENSHOT_DIR", "")
	c.NamePrefix = StringEnv("SCREENSHOT_PREFIX", "")
	c.Backend = StringEnv("SCREENSHOT_BACKEND", "")
	c.Notify = StringEnv("SCREENSHOT_NOTIFY", "")
	if envSet("SCREENSHOT_QUALITY") {
		c.Quality = Int(IntEnvClamped("SCREENSHOT_QUALITY", encode.DefaultQuality, 0, 100))
	}
	if envSet("SCREENSHOT_DENSITY") {
		c.DensityDPI = IntEnvClamped("SCREENSHOT_DENSITY", DefaultDensityDPI, 1, 2000)
	}
	if envSet("SCREENSHOT_DISPLAY") {
		c.Display = Int(IntEnvClamped("SCREENSHOT_DISPLAY", 0, 0, 64))
	}
	if envSet("SCREENSHOT_OPEN") {
		c.Open = Bool(BoolEnv("SCREENSHOT_OPEN", false))
	}
	if envSet("SCREENSHOT_FRAME_TIMEOUT_MS") {
		c.FrameTimeoutMS = Int(IntEnvClamped("SCREENSHOT_FRAME_TIMEOUT_MS", int(DefaultFrameTimeout/time.Millisecond), 0, 600000))
	}
	if envSet("SCREENSHOT_PERMISSION_TIMEOUT_MS") {
		c.PermissionTimeoutMS = Int(IntEnvClamped("SCREENSHOT_PERMISSION_TIMEOUT_MS", 0, 0, 600000))
	}
	return &c
}

// Merge applies layers over Defaults. Later layers win; nil layers are
// skipped.
func Merge(layers ...*Config) Config {
	result := Defaults()
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.Format != "" {
			result.Format = l.Format
		}
		if l.Quality != nil {
			result.Quality = Int(*l.Quality)
		}
		if l.OutputDir != "" {
			result.OutputDir = l.OutputDir
		}
		if l.NamePrefix != "" {
			result.NamePrefix = l.NamePrefix
		}
		if l.DensityDPI != 0 {
			result.DensityDPI = l.DensityDPI
		}
		if l.Display != nil {
			result.Display = Int(*l.Display)
		}
		if l.Backend != "" {
			result.Backend = l.Backend
		}
		if l.Notify != "" {
			result.Notify = l.Notify
		}
		if l.Open != nil {
			result.Open = Bool(*l.Open)
		}
		if l.FrameTimeoutMS != nil {
			result.FrameTimeoutMS = Int(*l.FrameTimeoutMS)
		}
		if l.PermissionTimeoutMS != nil {
			result.PermissionTimeoutMS = Int(*l.PermissionTimeoutMS)
		}
	}
	return result
}

// Load merges the file at path (if any) and the environment over Defaults
// and validates the result.
func Load(path string) (Config, error) {
	file, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(file, FromEnv())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks a merged config.
func (c Config) Validate() error {
	var errs []error
	if _, err := encode.ParseFormat(c.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Quality == nil || *c.Quality < 0 || *c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be within 0..100"))
	}
	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("output_dir must not be empty"))
	}
	if c.DensityDPI <= 0 {
		errs = append(errs, fmt.Errorf("density_dpi must be positive"))
	}
	if c.Display != nil && *c.Display < 0 {
		errs = append(errs, fmt.Errorf("display must be >= 0"))
	}
	switch capture.Backend(c.Backend) {
	case capture.BackendAuto, capture.BackendPortal, capture.BackendDisplay:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	switch c.Notify {
	case NotifyAuto, NotifyDesktop, NotifyTerminal, NotifyNone:
	default:
		errs = append(errs, fmt.Errorf("unknown notify mode %q", c.Notify))
	}
	if c.FrameTimeoutMS != nil && *c.FrameTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("frame_timeout_ms must be >= 0"))
	}
	if c.PermissionTimeoutMS != nil && *c.PermissionTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("permission_timeout_ms must be >= 0"))
	}
	return errors.Join(errs...)
}

// EncodeOptions returns the compression preference. Invalid values fall
// back to defaults.
func (c Config) EncodeOptions() encode.Options {
	opts := encode.DefaultOptions()
	if f, err := encode.ParseFormat(c.Format); err == nil {
		opts.Format = f
	}
	if c.Quality != nil {
		opts.Quality = min(max(*c.Quality, 0), 100)
	}
	return opts
}

func (c Config) DisplayIndex() int {
	if c.Display == nil {
		return 0
	}
	return *c.Display
}

func (c Config) OpenAfterSave() bool {
	return c.Open != nil && *c.Open
}

func (c Config) FrameTimeout() time.Duration {
	return millis(c.FrameTimeoutMS)
}

func (c Config) PermissionTimeout() time.Duration {
	return millis(c.PermissionTimeoutMS)
}

func millis(v *int) time.Duration {
	if v == nil || *v <= 0 {
		return 0
	}
	return time.Duration(*v) * time.Millisecond
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
