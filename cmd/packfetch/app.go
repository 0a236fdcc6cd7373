// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/packfetch/internal/config"
	"github.com/invowk/packfetch/internal/issue"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every command handler receives an App and reads
	// the effective configuration from it.
	App struct {
		Config     config.Provider
		Fs         afero.Fs
		HTTPClient *http.Client
		stdout     io.Writer
		stderr     io.Writer

		flags rootFlags

		// Set by loadConfig before any RunE.
		cfg     *config.Config
		cfgPath string
		cfgErr  error
		logger  *log.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     config.Provider
		Fs         afero.Fs
		HTTPClient *http.Client
		Stdout     io.Writer
		Stderr     io.Writer
	}

	rootFlags struct {
		configFile string
		verbose    bool
		packDir    string
		url        string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}

	return &App{
		Config:     deps.Config,
		Fs:         deps.Fs,
		HTTPClient: deps.HTTPClient,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
		logger:     log.New(io.Discard),
	}, nil
}

// loadConfig resolves the effective configuration: file and environment
// first, then command-line overrides. A broken implicit config file only
// warns and falls back to defaults; an explicit --config must load.
func (a *App) loadConfig(ctx context.Context) error {
	cfg, path, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configFile, Fs: a.Fs})
	if err != nil {
		if a.flags.configFile != "" {
			return &ExitError{Code: ExitFailure, Err: err}
		}
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.flags.verbose))
		a.cfgErr = err
		cfg, path = config.DefaultConfig(), ""
	}

	if a.flags.verbose {
		cfg.UI.Verbose = true
	}
	if a.flags.packDir != "" {
		cfg.PackDir = a.flags.packDir
	}
	if a.flags.url != "" {
		cfg.SuperpackURL = a.flags.url
	}

	a.cfg, a.cfgPath = cfg, path
	a.logger = log.NewWithOptions(a.stderr, log.Options{
		Prefix:          config.AppName,
		Level:           cfg.LogLevel(),
		ReportTimestamp: cfg.UI.Verbose,
	})
	a.logger.Debug("Configuration loaded", "file", path, "pack_dir", cfg.PackDir, "url", cfg.SuperpackURL)
	return nil
}

// effectiveConfig returns the loaded configuration, or defaults when a
// command runs without the root pre-run hook (as in unit tests).
func (a *App) effectiveConfig() *config.Config {
	if a.cfg == nil {
		a.cfg = config.DefaultConfig()
	}
	return a.cfg
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderIssue writes the markdown card of an issue to w. Rendering
// failures fall back to the raw markdown.
func (a *App) renderIssue(w io.Writer, id issue.Id) {
	is := issue.Get(id)
	if is == nil {
		return
	}
	style := a.effectiveConfig().UI.ColorScheme.GlamourStyle()
	out, err := is.Render(style)
	if err != nil {
		out = is.Markdown()
	}
	fmt.Fprint(w, out)
}
