// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/invowk/packfetch/internal/manifest"
)

func newBuildCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "build <manifest.toml> <output>",
		Short: "Build a superpack from a TOML manifest",
		Long: `Build a superpack from a TOML manifest.

Each [[pack]] table names a pack, the directory holding its files, the packs
it depends on and the codec its files are stored with:

  [[pack]]
  name = "ui"
  dir = "assets/ui"
  depends = ["common"]
  compression = "lz4"   # none, lz4, lz4hc or rfc1951

Relative directories resolve against the manifest's directory.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(app, args[0], args[1])
		},
	}
}

func runBuild(app *App, manifestPath, out string) error {
	m, err := manifest.Load(app.Fs, manifestPath)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := app.Fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := out + ".tmp"
	f, err := app.Fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	res, err := m.Build(app.Fs, f, manifest.WithLogger(app.logger.WithPrefix("build")))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = app.Fs.Remove(tmp)
		return err
	}
	if err := app.Fs.Rename(tmp, out); err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "%s Built %s: %d packs, %d files, %s of content in %s\n",
		SuccessStyle.Render("✓"), CmdStyle.Render(out), res.Packs, res.Files,
		units.BytesSize(float64(res.InputSize)), units.BytesSize(float64(res.Written)))
	return nil
}
