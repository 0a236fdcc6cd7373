// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/invowk/packfetch/internal/catalog"
	"github.com/invowk/packfetch/internal/download"
	"github.com/invowk/packfetch/internal/issue"
	"github.com/invowk/packfetch/internal/mount"
	"github.com/invowk/packfetch/internal/packmgr"
)

type (
	fetchOptions struct {
		priority  float32
		rateLimit string
		timeout   time.Duration
	}

	// fetchRun tracks the packs one fetch invocation waits for.
	fetchRun struct {
		names    []string
		priority float32
		requests map[string]*packmgr.PackRequest
	}
)

func newFetchCommand(app *App) *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch <pack>...",
		Short: "Download and mount packs with their dependencies",
		Long: `Download and mount packs with their dependencies.

Files already present in the pack directory are verified and reused, and
partial downloads are resumed. Packs are loaded in the order given; each
pack's dependencies are mounted before the pack itself.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), app, args, opts)
		},
	}

	cmd.Flags().Float32Var(&opts.priority, "priority", 0, "request priority; higher priorities load first")
	cmd.Flags().StringVar(&opts.rateLimit, "rate-limit", "", "bandwidth cap such as 512KiB or 4MiB (overrides download.rate_limit)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 waits until done)")
	return cmd
}

func runFetch(ctx context.Context, app *App, names []string, opts fetchOptions) error {
	cfg := app.effectiveConfig()
	if opts.rateLimit != "" {
		limit, err := units.RAMInBytes(opts.rateLimit)
		if err != nil {
			return fmt.Errorf("invalid --rate-limit %q: %w", opts.rateLimit, err)
		}
		cfg.Download.RateLimit = limit
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	progress := newProgressPrinter(app.stdout)
	e, err := newEngine(app, progress)
	if err != nil {
		return err
	}
	defer e.close()
	progress.files = e.vfs.List

	run := &fetchRun{names: names, priority: opts.priority}
	if err := e.run(ctx, run.until); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s %d pack(s) ready in %s\n", SuccessStyle.Render("✓"), len(names), CmdStyle.Render(cfg.PackDir))
	return nil
}

func (f *fetchRun) until(m *packmgr.Manager) (bool, error) {
	if m.InitState() != packmgr.InitReady {
		return false, nil
	}
	if f.requests == nil {
		f.requests = make(map[string]*packmgr.PackRequest, len(f.names))
		for _, name := range f.names {
			req, err := m.RequestPack(name, f.priority)
			if err != nil {
				return false, requestFailure(name, err)
			}
			f.requests[name] = req
		}
	}
	if err := m.FatalError(); err != nil {
		return false, breakerFailure(err)
	}

	done := true
	for _, name := range f.names {
		p, err := m.Pack(name)
		if err != nil {
			return false, err
		}
		switch {
		case p.State == packmgr.PackMounted:
		case p.State.IsError():
			if _, queued := m.Request(name); queued {
				done = false
				continue
			}
			return false, packFailure(p, f.requests[name])
		default:
			done = false
		}
	}
	return done, nil
}

func requestFailure(name string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("request pack").
		WithResource(name).
		Wrap(err)
	switch {
	case errors.Is(err, catalog.ErrUnknownPack):
		ctx.WithIssue(issue.PackNotFoundId).WithSuggestion("Run 'packfetch list' to see the available packs")
		return &ExitError{Code: ExitPackError, Err: ctx.Build()}
	case errors.Is(err, packmgr.ErrRequestingDisabled):
		ctx.WithIssue(issue.DiskFailureId)
		return &ExitError{Code: ExitBreakerTripped, Err: ctx.Build()}
	default:
		return &ExitError{Code: ExitFailure, Err: ctx.Build()}
	}
}

func breakerFailure(err error) error {
	var fatal *packmgr.FatalIOError
	resource := ""
	if errors.As(err, &fatal) {
		resource = fatal.Path
	}
	return &ExitError{Code: ExitBreakerTripped, Err: issue.NewErrorContext().
		WithOperation("write pack files").
		WithResource(resource).
		WithIssue(issue.DiskFailureId).
		WithSuggestion("Check free space and permissions of the pack directory").
		Wrap(err).
		Build()}
}

func packFailure(p packmgr.Pack, req *packmgr.PackRequest) error {
	var cause error
	if req != nil {
		cause = req.Err()
	}
	if cause == nil {
		cause = errors.New(p.ErrorMessage)
	}

	id := issue.SuperpackUnreachableId
	var taskErr download.TaskError
	switch {
	case p.State == packmgr.PackErrorLoading, errors.Is(cause, mount.ErrFooterMismatch):
		id = issue.MountFailedId
	case errors.As(cause, &taskErr) && taskErr.Kind == download.ErrorContentNotFound:
		id = issue.ContentMissingId
	}
	return &ExitError{Code: ExitPackError, Err: issue.NewErrorContext().
		WithOperation("fetch pack").
		WithResource(p.Name).
		WithIssue(id).
		Wrap(cause).
		Build()}
}
