// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	DefaultTickInterval    = 50 * time.Millisecond
	DefaultBreakerLimit    = 3
	DefaultDownloadTimeout = 30 * time.Second
	DefaultCacheEntries    = 128
	DefaultLogLevel        = "info"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme selects the glamour and lipgloss palette.
	ColorScheme string

	// Config is the effective packfetch configuration.
	Config struct {
		SuperpackURL string         `json:"superpack_url" mapstructure:"superpack_url"`
		PackDir      string         `json:"pack_dir" mapstructure:"pack_dir"`
		TickInterval time.Duration  `json:"tick_interval" mapstructure:"tick_interval"`
		PreloadPacks []string       `json:"preload_packs" mapstructure:"preload_packs"`
		Breaker      BreakerConfig  `json:"breaker" mapstructure:"breaker"`
		Download     DownloadConfig `json:"download" mapstructure:"download"`
		Mount        MountConfig    `json:"mount" mapstructure:"mount"`
		Log          LogConfig      `json:"log" mapstructure:"log"`
		UI           UIConfig       `json:"ui" mapstructure:"ui"`
	}

	BreakerConfig struct {
		Threshold int `json:"threshold" mapstructure:"threshold"`
	}

	DownloadConfig struct {
		// RateLimit is in bytes per second. Zero disables the limit.
		RateLimit int64         `json:"rate_limit" mapstructure:"rate_limit"`
		Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
		UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
	}

	MountConfig struct {
		CacheEntries int `json:"cache_entries" mapstructure:"cache_entries"`
	}

	LogConfig struct {
		Level string `json:"level" mapstructure:"level"`
	}

	UIConfig struct {
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
	}

	// InvalidConfigError collects every field that failed validation.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		PackDir:      defaultPackDir(),
		TickInterval: DefaultTickInterval,
		PreloadPacks: []string{},
		Breaker:      BreakerConfig{Threshold: DefaultBreakerLimit},
		Download:     DownloadConfig{Timeout: DefaultDownloadTimeout, UserAgent: "packfetch"},
		Mount:        MountConfig{CacheEntries: DefaultCacheEntries},
		Log:          LogConfig{Level: DefaultLogLevel},
		UI:           UIConfig{ColorScheme: ColorSchemeAuto},
	}
}

// Validate checks the constraints Go code relies on. The CUE schema
// performs the same checks for values coming from a file; environment
// overrides only pass through here.
func (c *Config) Validate() error {
	var errs []error
	if c.PackDir == "" {
		errs = append(errs, errors.New("pack_dir must not be empty"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.Breaker.Threshold < 1 {
		errs = append(errs, fmt.Errorf("breaker.threshold must be at least 1, got %d", c.Breaker.Threshold))
	}
	if c.Download.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("download.rate_limit must not be negative, got %d", c.Download.RateLimit))
	}
	if c.Download.Timeout < 0 {
		errs = append(errs, fmt.Errorf("download.timeout must not be negative, got %s", c.Download.Timeout))
	}
	if c.Mount.CacheEntries < 1 {
		errs = append(errs, fmt.Errorf("mount.cache_entries must be at least 1, got %d", c.Mount.CacheEntries))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// LogLevel returns the parsed log level, or info when it does not parse.
func (c *Config) LogLevel() log.Level {
	if c.UI.Verbose {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

func (e *InvalidConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func (s ColorScheme) Validate() error {
	switch s {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: auto, dark, light)", ErrInvalidColorScheme, string(s))
	}
}

// GlamourStyle maps the scheme to a glamour standard style name.
func (s ColorScheme) GlamourStyle() string {
	switch s {
	case ColorSchemeDark:
		return "dark"
	case ColorSchemeLight:
		return "light"
	default:
		return "auto"
	}
}
