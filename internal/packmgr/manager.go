// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"golang.org/x/exp/slices"

	"github.com/invowk/packfetch/internal/catalog"
	"github.com/invowk/packfetch/internal/download"
	"github.com/invowk/packfetch/internal/mount"
	"github.com/invowk/packfetch/internal/superpack"
)

const (
	// DefaultBreakerThreshold is how many consecutive local I/O errors
	// disable requesting.
	DefaultBreakerThreshold = 3
	// DefaultPreloadPriority is the priority of packs queued from Config.PreloadPacks.
	DefaultPreloadPriority float32 = 0

	// stateDir holds the manager's own files inside the pack directory.
	stateDir = superpack.StateDir
)

type (
	// Config is the static manager configuration.
	Config struct {
		// SuperpackURL is the remote superpack.
		SuperpackURL string
		// PackDir is where finalized files and manager state live.
		PackDir string
		// BreakerThreshold defaults to DefaultBreakerThreshold.
		BreakerThreshold int
		// PreloadPacks are requested as soon as init completes.
		PreloadPacks    []string
		PreloadPriority float32
	}

	// Option configures a Manager.
	Option func(*Manager)

	// Manager owns the pack catalog, the request queue and the per-file
	// download machinery. It is not safe for concurrent use: every method,
	// including Update, must be called from the goroutine driving Update.
	Manager struct {
		cfg      Config
		fs       afero.Fs
		dl       download.Downloader
		mounter  mount.Mounter
		observer multiObserver
		logger   *log.Logger

		updating atomic.Bool

		initState  InitState
		failedStep InitState
		pausedStep InitState
		initErr    error
		initTask   download.TaskID
		remoteSize uint64
		footer     superpack.Footer
		rawIndex   []byte
		injected   bool

		catalog    *catalog.Catalog
		packs      map[string]*Pack
		readyFiles []bool

		queue        []*PackRequest
		enabled      bool
		breakerCount int
		fatal        *FatalIOError
	}
)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithObserver adds an event observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = append(m.observer, o)
	}
}

// WithFs sets the local file system. The default is the OS file system.
func WithFs(fsys afero.Fs) Option {
	return func(m *Manager) {
		m.fs = fsys
	}
}

// WithCatalog supplies an already parsed catalog. Init then skips fetching
// the footer and file table.
func WithCatalog(c *catalog.Catalog) Option {
	return func(m *Manager) {
		m.catalog = c
		m.injected = c != nil
	}
}

// New creates a manager in InitFirstInit with requesting enabled. Nothing
// happens until Update is called.
func New(cfg Config, dl download.Downloader, mounter mount.Mounter, opts ...Option) (*Manager, error) {
	if cfg.SuperpackURL == "" {
		return nil, errors.New("superpack URL is required")
	}
	if cfg.PackDir == "" {
		return nil, errors.New("pack directory is required")
	}
	if dl == nil || mounter == nil {
		return nil, errors.New("downloader and mounter are required")
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = DefaultBreakerThreshold
	}

	m := &Manager{
		cfg:     cfg,
		fs:      afero.NewOsFs(),
		dl:      dl,
		mounter: mounter,
		logger:  log.New(io.Discard),
		enabled: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Update performs one cooperative step: an init step until the catalog is
// ready, then one step of the active request. It panics when re-entered.
func (m *Manager) Update() {
	if !m.updating.CompareAndSwap(false, true) {
		panic("packmgr: Update re-entered; drive the manager from a single goroutine")
	}
	defer m.updating.Store(false)

	if m.initState != InitReady {
		m.stepInit()
		return
	}
	if !m.enabled {
		return
	}
	m.stepQueue()
}

// InitState reports the startup lifecycle state.
func (m *Manager) InitState() InitState { return m.initState }

// InitError returns why init failed, or nil.
func (m *Manager) InitError() error { return m.initErr }

// FatalError returns the breaker error that disabled requesting, or nil.
func (m *Manager) FatalError() error {
	if m.fatal == nil {
		return nil
	}
	return m.fatal
}

// Mounter returns the virtual file system the manager mounts into.
func (m *Manager) Mounter() mount.Mounter { return m.mounter }

// Catalog returns the parsed superpack catalog.
func (m *Manager) Catalog() (*catalog.Catalog, error) {
	if m.initState != InitReady {
		return nil, ErrInitNotReady
	}
	return m.catalog, nil
}

// DependenciesOf returns the transitive dependencies of a pack.
func (m *Manager) DependenciesOf(name string) ([]string, error) {
	if m.initState != InitReady {
		return nil, ErrInitNotReady
	}
	return m.catalog.DependenciesOf(name)
}

// Pack returns a snapshot of one pack.
func (m *Manager) Pack(name string) (Pack, error) {
	if m.initState != InitReady {
		return Pack{}, ErrInitNotReady
	}
	p, ok := m.packs[name]
	if !ok {
		return Pack{}, &catalog.UnknownPackError{Name: name}
	}
	return p.snapshot(), nil
}

// Packs returns snapshots of every pack, dependencies first.
func (m *Manager) Packs() ([]Pack, error) {
	if m.initState != InitReady {
		return nil, ErrInitNotReady
	}
	names := m.catalog.Packs()
	out := make([]Pack, len(names))
	for i, n := range names {
		out[i] = m.packs[n].snapshot()
	}
	return out, nil
}

// RequestPack queues a pack and its dependencies. Requesting a pack that is
// already queued updates its priority and returns the existing request.
func (m *Manager) RequestPack(name string, priority float32) (*PackRequest, error) {
	if m.initState != InitReady {
		return nil, ErrInitNotReady
	}
	if m.fatal != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestingDisabled, m.fatal)
	}
	deps, err := m.catalog.DependenciesOf(name)
	if err != nil {
		return nil, err
	}
	if r := m.findRequest(name); r != nil {
		if err := m.SetPriority(name, priority); err != nil {
			return nil, err
		}
		return r, nil
	}

	r := &PackRequest{
		mgr:               m,
		requestedPackName: name,
		priority:          priority,
		dependencyCache:   deps,
	}
	for _, p := range r.packs() {
		pack := m.packs[p]
		r.totalSize += pack.TotalSizeFromDB
		if pack.State == PackNotRequested || pack.State.IsError() {
			pack.ErrorMessage = ""
			m.setPackState(pack, PackQueued)
		}
	}
	m.packs[name].Priority = priority
	m.enqueue(r)
	m.logger.Info("Pack requested", "pack", name, "priority", priority, "dependencies", len(deps))
	return r, nil
}

// SetPriority changes the priority of a queued request. If another request
// becomes the head of the queue the previous head is paused.
func (m *Manager) SetPriority(name string, priority float32) error {
	r := m.findRequest(name)
	if r == nil {
		return fmt.Errorf("%w %q", ErrNoRequest, name)
	}
	head := m.head()
	r.priority = priority
	m.packs[name].Priority = priority
	slices.SortStableFunc(m.queue, byPriority)
	m.preempted(head)
	return nil
}

// CancelRequest stops and removes the request for a pack. Packs no other
// queued request needs go back to PackNotRequested; mounted packs stay mounted.
func (m *Manager) CancelRequest(name string) error {
	i := slices.IndexFunc(m.queue, func(r *PackRequest) bool { return r.requestedPackName == name })
	if i < 0 {
		return fmt.Errorf("%w %q", ErrNoRequest, name)
	}
	r := m.queue[i]
	r.stop()
	m.queue = slices.Delete(m.queue, i, i+1)
	m.release(r)
	m.logger.Info("Pack request cancelled", "pack", name)
	return nil
}

// Request returns the queued request for a pack.
func (m *Manager) Request(name string) (*PackRequest, bool) {
	r := m.findRequest(name)
	return r, r != nil
}

// Requests returns the queue, head first.
func (m *Manager) Requests() []*PackRequest {
	return slices.Clone(m.queue)
}

// IsRequestingEnabled reports whether downloads may run.
func (m *Manager) IsRequestingEnabled() bool { return m.enabled }

// SetRequestingEnabled pauses or resumes all downloading. Disabling stops
// every task; enabling clears the breaker and file errors so queued
// requests retry.
func (m *Manager) SetRequestingEnabled(enabled bool) {
	if enabled == m.enabled {
		return
	}
	m.enabled = enabled
	if !enabled {
		m.stopAll()
		if m.initState == InitFetchingFooter || m.initState == InitFetchingFileTable {
			m.pauseInit(m.initState)
		}
		m.logger.Info("Requesting disabled")
		return
	}

	m.breakerCount = 0
	m.fatal = nil
	for _, r := range m.queue {
		r.reset()
	}
	if m.initState == InitPaused {
		m.setInitState(m.pausedStep)
	}
	m.logger.Info("Requesting enabled")
}

// LocalPath is where the finalized copy of a superpack file lives.
func LocalPath(packDir, name string) string {
	return filepath.Join(packDir, filepath.FromSlash(name))
}

func (m *Manager) localPath(name string) string {
	return LocalPath(m.cfg.PackDir, name)
}

func (m *Manager) statePath(name string) string {
	return filepath.Join(m.cfg.PackDir, stateDir, name)
}

// fileHost

func (m *Manager) filesystem() afero.Fs             { return m.fs }
func (m *Manager) downloader() download.Downloader { return m.dl }
func (m *Manager) requestingEnabled() bool         { return m.enabled }
func (m *Manager) log() *log.Logger                { return m.logger }

func (m *Manager) fileReady(index uint32) {
	if int(index) < len(m.readyFiles) {
		m.readyFiles[index] = true
	}
	m.breakerCount = 0
}
