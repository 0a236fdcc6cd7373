// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/invowk/packfetch/internal/issue"
	"github.com/invowk/packfetch/internal/mount"
	"github.com/invowk/packfetch/internal/packmgr"
)

type verifyReport struct {
	ok, missing, corrupt, removed int
}

func newVerifyCommand(app *App) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check downloaded files against the file table",
		Long: `Check every downloaded file in the pack directory: its size, its
checksum footer and the CRC32 of its payload. Works offline against the file
table saved by the last fetch or list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), app, fix)
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "remove corrupt files so the next fetch downloads them again")
	return cmd
}

func runVerify(ctx context.Context, app *App, fix bool) error {
	cfg := app.effectiveConfig()
	cat, err := packmgr.LoadCachedCatalog(app.Fs, cfg.PackDir)
	if err != nil {
		ec := issue.NewErrorContext().
			WithOperation("read the saved file table").
			WithResource(cfg.PackDir).
			Wrap(err)
		if errors.Is(err, fs.ErrNotExist) {
			ec.WithSuggestion("Run 'packfetch list' or 'packfetch fetch' first")
		} else {
			ec.WithIssue(issue.SuperpackCorruptId)
		}
		return ec.BuildError()
	}

	vfs, err := mount.NewVFS(app.Fs, mount.WithLogger(app.logger.WithPrefix("mount")))
	if err != nil {
		return err
	}

	var rep verifyReport
	for _, pack := range cat.Packs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := cat.FilesOf(pack)
		if err != nil {
			return err
		}
		for _, e := range entries {
			path := packmgr.LocalPath(cfg.PackDir, e.Name)
			if exists, _ := afero.Exists(app.Fs, path); !exists {
				rep.missing++
				continue
			}
			if err := vfs.Verify(mount.Source{LocalPath: path, Entry: e}); err != nil {
				rep.corrupt++
				fmt.Fprintf(app.stdout, "%s %s %s\n", ErrorStyle.Render("✗"), CmdStyle.Render(e.Name), VerboseStyle.Render(err.Error()))
				if fix {
					if rmErr := app.Fs.Remove(path); rmErr != nil {
						return fmt.Errorf("removing %s: %w", path, rmErr)
					}
					rep.removed++
				}
				continue
			}
			rep.ok++
			app.logger.Debug("File verified", "file", e.Name, "pack", pack)
		}
	}

	fmt.Fprintf(app.stdout, "%s %d ok, %d corrupt, %d not downloaded\n",
		TitleStyle.Render("verify:"), rep.ok, rep.corrupt, rep.missing)
	if rep.removed > 0 {
		fmt.Fprintf(app.stdout, "%s removed %d corrupt file(s)\n", SuccessStyle.Render("✓"), rep.removed)
	}
	if rep.corrupt > 0 && !fix {
		return &ExitError{Code: ExitPackError, Err: issue.NewErrorContext().
			WithOperation("verify pack files").
			WithResource(cfg.PackDir).
			WithIssue(issue.MountFailedId).
			WithSuggestion("Run 'packfetch verify --fix' to remove them").
			Wrap(fmt.Errorf("%d corrupt file(s)", rep.corrupt)).
			Build()}
	}
	return nil
}
