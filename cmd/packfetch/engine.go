// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/packfetch/internal/catalog"
	"github.com/invowk/packfetch/internal/config"
	"github.com/invowk/packfetch/internal/core/tickloop"
	"github.com/invowk/packfetch/internal/download"
	"github.com/invowk/packfetch/internal/issue"
	"github.com/invowk/packfetch/internal/mount"
	"github.com/invowk/packfetch/internal/packmgr"
	"github.com/invowk/packfetch/internal/superpack"
)

// defaultInitRetries is how often a failed init step is retried before a
// command gives up.
const defaultInitRetries = 2

type (
	// engine owns the collaborators of one pack manager for the duration of
	// a command.
	engine struct {
		cfg    *config.Config
		logger *log.Logger
		dl     *download.HTTPDownloader
		vfs    *mount.VFS
		mgr    *packmgr.Manager

		initRetries int
	}

	// untilFunc inspects the manager after each Update, on the loop
	// goroutine, and reports whether the command is finished.
	untilFunc func(m *packmgr.Manager) (bool, error)
)

func newEngine(app *App, observers ...packmgr.Observer) (*engine, error) {
	cfg := app.effectiveConfig()
	if cfg.SuperpackURL == "" {
		return nil, issue.NewErrorContext().
			WithOperation("start the pack manager").
			WithResource("superpack_url").
			WithSuggestion("Pass --url or set superpack_url in the config file").
			WithSuggestion("Set PACKFETCH_SUPERPACK_URL in the environment").
			WithIssue(issue.SuperpackUnreachableId).
			Wrap(errors.New("no superpack URL configured")).
			BuildError()
	}

	client := app.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg.Download.Timeout)
	}
	logger := app.logger

	dl := download.NewHTTP(app.Fs,
		download.WithHTTPClient(client),
		download.WithRateLimit(int(cfg.Download.RateLimit)),
		download.WithUserAgent(userAgent(cfg)),
		download.WithLogger(logger.WithPrefix("download")),
	)
	vfs, err := mount.NewVFS(app.Fs,
		mount.WithCacheEntries(cfg.Mount.CacheEntries),
		mount.WithLogger(logger.WithPrefix("mount")),
	)
	if err != nil {
		_ = dl.Close()
		return nil, err
	}

	opts := []packmgr.Option{packmgr.WithFs(app.Fs), packmgr.WithLogger(logger.WithPrefix("packs"))}
	for _, o := range observers {
		opts = append(opts, packmgr.WithObserver(o))
	}
	mgr, err := packmgr.New(packmgr.Config{
		SuperpackURL:     cfg.SuperpackURL,
		PackDir:          cfg.PackDir,
		BreakerThreshold: cfg.Breaker.Threshold,
		PreloadPacks:     cfg.PreloadPacks,
		PreloadPriority:  packmgr.DefaultPreloadPriority,
	}, dl, vfs, opts...)
	if err != nil {
		_ = dl.Close()
		return nil, err
	}

	return &engine{cfg: cfg, logger: logger, dl: dl, vfs: vfs, mgr: mgr, initRetries: defaultInitRetries}, nil
}

// newHTTPClient bounds connection setup and the wait for response headers.
// Bodies are not bounded, since a pack file may take minutes to arrive.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
		transport.TLSHandshakeTimeout = timeout
	}
	return &http.Client{Transport: transport}
}

func userAgent(cfg *config.Config) string {
	ua := cfg.Download.UserAgent
	if ua == "" {
		ua = config.AppName
	}
	return ua + "/" + Version
}

// run drives the manager from a tick loop until until reports done, the
// step fails or ctx ends. Init failures are retried initRetries times.
func (e *engine) run(ctx context.Context, until untilFunc) error {
	retries := e.initRetries
	step := func(ctx context.Context) (bool, error) {
		e.mgr.Update()
		if e.mgr.InitState() == packmgr.InitError {
			if retries == 0 {
				return false, initFailure(e.mgr.InitError())
			}
			retries--
			e.logger.Warn("Init failed, retrying", "err", e.mgr.InitError(), "left", retries)
			if err := e.mgr.RetryInit(); err != nil {
				return false, err
			}
			return false, nil
		}
		return until(e.mgr)
	}

	loop, err := tickloop.New(e.cfg.TickInterval, step,
		tickloop.WithLogger(e.logger.WithPrefix("tick")),
		tickloop.WithImmediateFirstStep(),
	)
	if err != nil {
		return err
	}
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	if err := loop.Wait(ctx); err != nil {
		return err
	}
	if loop.State() == tickloop.StateStopped {
		return fmt.Errorf("interrupted: %w", context.Cause(ctx))
	}
	return nil
}

// untilReady finishes as soon as the catalog is available.
func untilReady(m *packmgr.Manager) (bool, error) {
	return m.InitState() == packmgr.InitReady, nil
}

func (e *engine) close() {
	if err := e.dl.Close(); err != nil {
		e.logger.Debug("Downloader close failed", "err", err)
	}
}

// initFailure maps an init error to the issue card that explains it.
func initFailure(err error) error {
	id := issue.SuperpackUnreachableId
	switch {
	case errors.Is(err, catalog.ErrCyclicDependency):
		id = issue.DependencyCycleId
	case errors.Is(err, superpack.ErrFooterCorrupt),
		errors.Is(err, superpack.ErrTableCorrupt),
		errors.Is(err, superpack.ErrBadMarker):
		id = issue.SuperpackCorruptId
	}
	return issue.NewErrorContext().
		WithOperation("load the superpack catalog").
		WithIssue(id).
		Wrap(err).
		BuildError()
}
