// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/invowk/packfetch/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the packfetch command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "packfetch",
		Short: "Download asset packs from a superpack on demand",
		Long: TitleStyle.Render("packfetch") + SubtitleStyle.Render(" - Download asset packs from a superpack on demand") + `

A superpack is one remote file holding many packs of asset files. packfetch
reads its file table with ranged requests, downloads the files of the packs
you ask for (dependencies first), verifies them and mounts them into a
virtual file system.

` + SubtitleStyle.Render("Examples:") + `
  packfetch list                          Show the packs of the superpack
  packfetch fetch ui audio                Download and mount two packs
  packfetch verify                        Check every downloaded file
  packfetch build superpack.toml out.sp   Build a superpack from directories
  packfetch config show                   Show the effective configuration`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadConfig(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/packfetch/config.cue)")
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.StringVar(&app.flags.packDir, "pack-dir", "", "directory downloaded packs are stored in")
	pf.StringVar(&app.flags.url, "url", "", "superpack URL")

	root.AddCommand(
		newFetchCommand(app),
		newListCommand(app),
		newVerifyCommand(app),
		newBuildCommand(app),
		newConfigCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the packfetch CLI and exits with the command's exit code.
// It is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(ExitFailure)
	}

	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithCommit(Commit),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler(app)),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}

// errorHandler prints actionable errors with their suggestions, plus the
// matching issue card in verbose mode. Other errors keep fang's styling.
func errorHandler(app *App) fang.ErrorHandler {
	return func(w io.Writer, styles fang.Styles, err error) {
		var ae *issue.ActionableError
		if !errors.As(err, &ae) {
			fang.DefaultErrorHandler(w, styles, err)
			return
		}
		verbose := app.effectiveConfig().UI.Verbose
		fmt.Fprintln(w, ErrorStyle.Render("Error: ")+ae.Format(verbose))
		if verbose && ae.IssueID != 0 {
			fmt.Fprintln(w)
			app.renderIssue(w, ae.IssueID)
		}
	}
}
