// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	units "github.com/docker/go-units"

	"github.com/invowk/packfetch/internal/packmgr"
)

const (
	progressBarWidth = 24
	// progressStep is the percentage a request must advance before a new
	// progress line is printed.
	progressStep = 10
)

// progressPrinter is a packmgr.Observer that writes one line per notable
// event. It runs on the tick loop goroutine, so it needs no locking.
type progressPrinter struct {
	w    io.Writer
	last map[string]int
	// files counts the mounted files of a pack. Optional.
	files func(pack string) ([]string, error)
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: make(map[string]int)}
}

func (p *progressPrinter) RequestStartLoading(pack packmgr.Pack) {
	fmt.Fprintf(p.w, "%s Loading %s (%s)\n", CmdStyle.Render("→"), TitleStyle.Render(pack.Name), units.BytesSize(float64(pack.TotalSizeFromDB)))
}

func (p *progressPrinter) PackStateChanged(pack packmgr.Pack) {
	switch pack.State {
	case packmgr.PackMounted:
		detail := units.BytesSize(float64(pack.TotalSizeFromDB))
		if p.files != nil {
			if names, err := p.files(pack.Name); err == nil {
				detail = fmt.Sprintf("%d files, %s", len(names), detail)
			}
		}
		fmt.Fprintf(p.w, "%s %s mounted %s\n", SuccessStyle.Render("✓"), TitleStyle.Render(pack.Name), VerboseStyle.Render("("+detail+")"))
	case packmgr.PackErrorLoading, packmgr.PackOtherError:
		fmt.Fprintf(p.w, "%s %s %s\n", ErrorStyle.Render("✗"), TitleStyle.Render(pack.Name), ErrorStyle.Render(pack.ErrorMessage))
	default:
	}
}

func (p *progressPrinter) PackDownloadChanged(packmgr.Pack) {}

func (p *progressPrinter) RequestProgressChanged(r *packmgr.PackRequest) {
	pct := int(r.Progress() * 100)
	bucket := pct / progressStep
	if last, ok := p.last[r.Name()]; ok && bucket <= last {
		return
	}
	p.last[r.Name()] = bucket
	fmt.Fprintln(p.w, progressLine(r.Name(), r.Progress(), r.DownloadedSize(), r.TotalSize()))
}

func (p *progressPrinter) FileErrorOccurred(path string, errno int) {
	fmt.Fprintf(p.w, "%s local file error on %s (errno %d), requesting stopped\n", ErrorStyle.Render("✗"), CmdStyle.Render(path), errno)
}

func progressLine(name string, progress float64, done, total uint64) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * progressBarWidth)
	bar := barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", progressBarWidth-filled))
	return fmt.Sprintf("  %s %s %s %s",
		packNameStyle.Render(name),
		bar,
		percentStyle.Render(fmt.Sprintf("%d%%", int(progress*100))),
		VerboseStyle.Render(units.BytesSize(float64(done))+" / "+units.BytesSize(float64(total))),
	)
}
