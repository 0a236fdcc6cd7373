// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/invowk/packfetch/internal/packmgr"
)

const listWordWrap = 100

func newListCommand(app *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the packs of the superpack",
		Long: `List the packs of the superpack with their dependencies, size and
local state. Only the footer and file table are downloaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), app, raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the markdown table without rendering it")
	return cmd
}

func runList(ctx context.Context, app *App, raw bool) error {
	e, err := newEngine(app)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.run(ctx, untilReady); err != nil {
		return err
	}
	packs, err := e.mgr.Packs()
	if err != nil {
		return err
	}
	cat, err := e.mgr.Catalog()
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", e.cfg.SuperpackURL)
	sb.WriteString("| Pack | Depends on | Files | Size | State |\n")
	sb.WriteString("|------|------------|------:|-----:|-------|\n")
	for _, p := range packs {
		files, _ := cat.FilesOf(p.Name)
		deps := "-"
		if len(p.Dependencies) > 0 {
			deps = strings.Join(p.Dependencies, ", ")
		}
		fmt.Fprintf(&sb, "| %s | %s | %d | %s | %s |\n",
			p.Name, deps, len(files), units.BytesSize(float64(p.TotalSizeFromDB)), stateLabel(p))
	}
	fmt.Fprintf(&sb, "\n%d packs, %d files\n", len(packs), len(cat.Files()))

	if raw {
		_, err := fmt.Fprint(app.stdout, sb.String())
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(e.cfg.UI.ColorScheme.GlamourStyle()),
		glamour.WithWordWrap(listWordWrap),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(sb.String())
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(app.stdout, out)
	return err
}

func stateLabel(p packmgr.Pack) string {
	switch p.State {
	case packmgr.PackMounted:
		return "downloaded"
	case packmgr.PackNotRequested:
		return "not downloaded"
	default:
		return p.State.String()
	}
}
