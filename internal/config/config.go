// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/invowk/packfetch/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "packfetch"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PACKFETCH"

	// maxConfigSize bounds the config file read into memory.
	maxConfigSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the packfetch configuration directory using platform
// conventions: %APPDATA% on Windows, ~/Library/Application Support on macOS
// and $XDG_CONFIG_HOME (defaulting to ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(dir, AppName), nil
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// defaultPackDir follows the XDG data directory on Unix and the local app
// data directory on Windows.
func defaultPackDir() string {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, AppName, "packs")
		}
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "packs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName, "packs")
	}
	return filepath.Join(home, ".local", "share", AppName, "packs")
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("superpack_url", d.SuperpackURL)
	v.SetDefault("pack_dir", d.PackDir)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("preload_packs", d.PreloadPacks)
	v.SetDefault("breaker.threshold", d.Breaker.Threshold)
	v.SetDefault("download.rate_limit", d.Download.RateLimit)
	v.SetDefault("download.timeout", d.Download.Timeout)
	v.SetDefault("download.user_agent", d.Download.UserAgent)
	v.SetDefault("mount.cache_entries", d.Mount.CacheEntries)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.color_scheme", string(d.UI.ColorScheme))
}

// loadWithOptions performs option-driven config loading without touching
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolvePath(fsys, opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, fsys, path); err != nil {
			return nil, "", loadError(path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", loadError(path, fmt.Errorf("failed to parse config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", loadError(path, err)
	}
	return &cfg, path, nil
}

// resolvePath picks the explicit file, then the config directory, then the
// working directory. An empty result means defaults only.
func resolvePath(fsys afero.Fs, opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(fsys, opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'packfetch config init' to write a default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	name := ConfigFileName + "." + ConfigFileExt
	for _, candidate := range []string{filepath.Join(dir, name), name} {
		if fileExists(fsys, candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the values match the schema shown by 'packfetch config show --schema'").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

// loadCUEIntoViper parses a CUE file, validates it against #Config and
// merges it into Viper. Fields are optional, so validation is not concrete.
func loadCUEIntoViper(v *viper.Viper, fsys afero.Fs, path string) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigSize)
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// formatCUEError flattens CUE errors into "<file>: <path>: <message>" lines.
func formatCUEError(err error, path string) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", path, err)
	}
	lines := make([]string, 0, len(list))
	for _, e := range list {
		msg := e.Error()
		if p := strings.Join(cueerrors.Path(e), "."); p != "" && !strings.HasPrefix(msg, p) {
			msg = p + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", path, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", path, strings.Join(lines, "\n  "))
}

func fileExists(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteDefault writes the default configuration to path. An existing file
// is kept unless force is set.
func WriteDefault(fsys afero.Fs, path string, force bool) error {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if !force && fileExists(fsys, path) {
		return fmt.Errorf("%w: %s", os.ErrExist, path)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := afero.WriteFile(fsys, path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Schema returns the embedded CUE schema.
func Schema() string {
	return configSchema
}

// GenerateCUE renders cfg as a config file accepted by the schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// packfetch configuration file\n\n")
	if cfg.SuperpackURL != "" {
		fmt.Fprintf(&sb, "superpack_url: %q\n", cfg.SuperpackURL)
	}
	fmt.Fprintf(&sb, "pack_dir: %q\n", cfg.PackDir)
	fmt.Fprintf(&sb, "tick_interval: %q\n", cfg.TickInterval.String())

	sb.WriteString("preload_packs: [")
	for i, p := range cfg.PreloadPacks {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", p)
	}
	sb.WriteString("]\n")

	fmt.Fprintf(&sb, "\nbreaker: {\n\tthreshold: %d\n}\n", cfg.Breaker.Threshold)

	sb.WriteString("\ndownload: {\n")
	fmt.Fprintf(&sb, "\trate_limit: %d\n", cfg.Download.RateLimit)
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Download.Timeout.String())
	if cfg.Download.UserAgent != "" {
		fmt.Fprintf(&sb, "\tuser_agent: %q\n", cfg.Download.UserAgent)
	}
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\nmount: {\n\tcache_entries: %d\n}\n", cfg.Mount.CacheEntries)
	fmt.Fprintf(&sb, "\nlog: {\n\tlevel: %q\n}\n", cfg.Log.Level)

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", string(cfg.UI.ColorScheme))
	sb.WriteString("}\n")

	return sb.String()
}
