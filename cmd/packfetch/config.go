// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/invowk/packfetch/internal/config"
	"github.com/invowk/packfetch/internal/issue"
)

// newConfigCommand creates the `packfetch config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage packfetch configuration",
		Long: `Manage packfetch configuration.

Configuration is stored in:
  - Linux: ~/.config/packfetch/config.cue
  - macOS: ~/Library/Application Support/packfetch/config.cue
  - Windows: %APPDATA%\packfetch\config.cue

Every key can be overridden from the environment, for example
PACKFETCH_SUPERPACK_URL or PACKFETCH_DOWNLOAD_RATE_LIMIT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var schema bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(app, schema)
		},
	}
	showCmd.Flags().BoolVar(&schema, "schema", false, "print the CUE schema instead")
	cfgCmd.AddCommand(showCmd)

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		// The file may not exist yet, so --config must not be loaded.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(app)
		},
	})

	return cfgCmd
}

func showConfig(app *App, schema bool) error {
	if schema {
		fmt.Fprint(app.stdout, config.Schema())
		return nil
	}
	if app.cfgErr != nil {
		app.renderIssue(app.stderr, issue.ConfigLoadFailedId)
		return &ExitError{Code: ExitFailure, Err: app.cfgErr}
	}

	source := SubtitleStyle.Render("(using defaults)")
	if app.cfgPath != "" {
		source = app.cfgPath
	}
	fmt.Fprintf(app.stdout, "// %s: %s\n", CmdStyle.Render("Config file"), source)
	fmt.Fprint(app.stdout, config.GenerateCUE(app.effectiveConfig()))
	return nil
}

func initConfig(app *App, force bool) error {
	path := app.flags.configFile
	if path == "" {
		var err error
		if path, err = config.ConfigFilePath(); err != nil {
			return err
		}
	}

	if err := config.WriteDefault(app.Fs, path, force); err != nil {
		if errors.Is(err, os.ErrExist) {
			return issue.NewErrorContext().
				WithOperation("create config").
				WithResource(path).
				WithSuggestion("Use --force to overwrite it").
				Wrap(err).
				BuildError()
		}
		return fmt.Errorf("failed to create config: %w", err)
	}

	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	cfgFile, err := config.ConfigFilePath()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
	fmt.Fprintf(app.stdout, "Config file: %s\n", cfgFile)
	fmt.Fprintf(app.stdout, "Pack directory: %s\n", app.effectiveConfig().PackDir)
	return nil
}
