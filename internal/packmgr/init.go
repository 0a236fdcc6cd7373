// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/invowk/packfetch/internal/catalog"
	"github.com/invowk/packfetch/internal/download"
	"github.com/invowk/packfetch/internal/mount"
	"github.com/invowk/packfetch/internal/superpack"
)

const (
	footerFile = "footer"
	indexFile  = "index.part"
	// metaFile caches the superpack tail (metadata, file table and footer)
	// the local files were downloaded against.
	metaFile = "superpack.meta"
)

// RetryInit resumes init at the step that failed.
func (m *Manager) RetryInit() error {
	if m.initState != InitError {
		return fmt.Errorf("%w: state is %s", ErrInitNotFailed, m.initState)
	}
	m.initErr = nil
	m.setInitState(m.failedStep)
	return nil
}

func (m *Manager) setInitState(s InitState) {
	if m.initState == s {
		return
	}
	m.logger.Debug("Init state changed", "from", m.initState, "to", s)
	m.initState = s
}

func (m *Manager) failInit(step InitState, err error) {
	m.dropInitTask()
	m.failedStep = step
	m.initErr = &InitStepError{Step: step, Err: err}
	m.logger.Error("Init failed", "step", step, "err", err)
	m.setInitState(InitError)
}

func (m *Manager) pauseInit(step InitState) {
	m.dropInitTask()
	m.pausedStep = step
	m.logger.Info("Init paused", "step", step)
	m.setInitState(InitPaused)
}

func (m *Manager) dropInitTask() {
	if m.initTask != "" {
		m.dl.RemoveTask(m.initTask)
		m.initTask = ""
	}
}

func (m *Manager) stepInit() {
	switch m.initState {
	case InitFirstInit:
		if err := m.fs.MkdirAll(filepath.Join(m.cfg.PackDir, stateDir), 0o755); err != nil {
			m.failInit(InitFirstInit, fmt.Errorf("create pack directory: %w", err))
			return
		}
		if m.injected {
			m.installCatalog(m.catalog)
			m.setInitState(InitComparingLocalCatalog)
			return
		}
		m.setInitState(InitFetchingFooter)
	case InitFetchingFooter:
		m.fetchFooter()
	case InitFetchingFileTable:
		m.fetchFileTable()
	case InitComparingLocalCatalog:
		m.compareLocalCatalog()
	case InitMountingCommonPacks:
		m.mountCommonPacks()
	case InitReady, InitPaused, InitError:
	}
}

// pollInitTask drives the single download task init uses. done is true once
// the task finished without error.
func (m *Manager) pollInitTask(dest string, rng download.Range) (status download.TaskStatus, done bool, err error) {
	if m.initTask == "" {
		if !rng.Suffix {
			if rmErr := m.fs.Remove(dest); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				return status, false, rmErr
			}
		}
		id, err := m.dl.ResumeTask(m.cfg.SuperpackURL, dest, rng)
		if err != nil {
			return status, false, err
		}
		m.initTask = id
		return status, false, nil
	}

	st, ok := m.dl.TaskStatus(m.initTask)
	if !ok {
		m.initTask = ""
		return st, false, nil
	}
	if st.State != download.TaskFinished {
		return st, false, nil
	}
	m.dl.RemoveTask(m.initTask)
	m.initTask = ""
	if st.Error.Happened() {
		return st, false, st.Error
	}
	return st, true, nil
}

func (m *Manager) fetchFooter() {
	if !m.enabled {
		m.pauseInit(InitFetchingFooter)
		return
	}
	path := m.statePath(footerFile)
	st, done, err := m.pollInitTask(path, download.Range{Size: superpack.FooterSize, Suffix: true})
	if err != nil {
		m.failInit(InitFetchingFooter, err)
		return
	}
	if !done {
		return
	}

	raw, err := afero.ReadFile(m.fs, path)
	if err != nil {
		m.failInit(InitFetchingFooter, err)
		return
	}
	footer, err := superpack.ParseFooter(raw)
	if err != nil {
		m.failInit(InitFetchingFooter, err)
		return
	}
	if st.TotalSize == 0 {
		m.failInit(InitFetchingFooter, errors.New("server did not report the superpack size"))
		return
	}
	m.footer = footer
	m.remoteSize = st.TotalSize
	_ = m.fs.Remove(path)
	m.logger.Debug("Superpack footer fetched", "size", st.TotalSize, "files", footer.NumFiles)
	m.setInitState(InitFetchingFileTable)
}

func (m *Manager) fetchFileTable() {
	if !m.enabled {
		m.pauseInit(InitFetchingFileTable)
		return
	}
	off, err := m.footer.IndexOffset(m.remoteSize)
	if err != nil {
		m.failInit(InitFetchingFileTable, err)
		return
	}
	path := m.statePath(indexFile)
	_, done, err := m.pollInitTask(path, download.Range{Offset: off, Size: m.footer.IndexSize()})
	if err != nil {
		m.failInit(InitFetchingFileTable, err)
		return
	}
	if !done {
		return
	}

	raw, err := afero.ReadFile(m.fs, path)
	if err != nil {
		m.failInit(InitFetchingFileTable, err)
		return
	}
	ix, err := superpack.ParseIndex(m.footer, raw)
	if err != nil {
		m.failInit(InitFetchingFileTable, err)
		return
	}
	cat, err := catalog.New(ix)
	if err != nil {
		m.failInit(InitFetchingFileTable, err)
		return
	}
	_ = m.fs.Remove(path)
	m.rawIndex = raw
	m.installCatalog(cat)
	m.logger.Info("Superpack catalog loaded", "packs", cat.Len(), "files", len(ix.Files))
	m.setInitState(InitComparingLocalCatalog)
}

func (m *Manager) installCatalog(c *catalog.Catalog) {
	m.catalog = c
	names := c.Packs()
	m.packs = make(map[string]*Pack, len(names))
	for _, n := range names {
		deps, _ := c.DirectDependencies(n)
		size, _ := c.TotalSize(n)
		hash, _ := c.Hash(n)
		m.packs[n] = &Pack{
			Name:            n,
			Dependencies:    deps,
			TotalSizeFromDB: size,
			HashFromDB:      hash,
		}
	}
	m.readyFiles = make([]bool, len(c.Files()))
}

// compareLocalCatalog drops local files that belong to a different superpack
// and records which files are already finalized.
func (m *Manager) compareLocalCatalog() {
	if m.rawIndex != nil {
		tail := append(bytes.Clone(m.rawIndex), m.footer.Bytes()...)
		cached, err := afero.ReadFile(m.fs, m.statePath(metaFile))
		if err != nil || !bytes.Equal(cached, tail) {
			m.logger.Info("Superpack changed, removing outdated local files")
			m.purgeStaleFiles()
			if err := m.writeAtomic(m.statePath(metaFile), tail); err != nil {
				m.failInit(InitComparingLocalCatalog, err)
				return
			}
		}
	}

	ready := 0
	for i, e := range m.catalog.Files() {
		if m.localFileMatches(e) {
			m.readyFiles[i] = true
			ready++
		}
	}
	m.logger.Debug("Local files scanned", "ready", ready, "total", len(m.readyFiles))
	m.setInitState(InitMountingCommonPacks)
}

func (m *Manager) purgeStaleFiles() {
	for _, e := range m.catalog.Files() {
		path := m.localPath(e.Name)
		if _, err := m.fs.Stat(path); err == nil && !m.localFileMatches(e) {
			m.removeQuietly(path)
		}
		m.removeQuietly(path + partSuffix)
	}
}

func (m *Manager) removeQuietly(path string) {
	if err := m.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("Could not remove outdated file", "path", path, "err", err)
	}
}

// localFileMatches reports whether a finalized local file carries the Lite
// footer the file table expects.
func (m *Manager) localFileMatches(e superpack.FileEntry) bool {
	f, err := m.fs.Open(m.localPath(e.Name))
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || fi.Size() != int64(e.CompressedSize)+superpack.LiteFooterSize {
		return false
	}
	footer, err := superpack.ReadLiteFooter(f, fi.Size())
	return err == nil && footer.Matches(e)
}

func (m *Manager) writeAtomic(path string, data []byte) error {
	tmp := path + partSuffix
	f, err := m.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return m.fs.Rename(tmp, path)
}

// mountCommonPacks mounts every pack that is complete on disk, then queues
// the configured preload packs.
func (m *Manager) mountCommonPacks() {
	for _, name := range m.catalog.Packs() {
		p := m.packs[name]
		if m.mounter.IsMounted(name) {
			p.DownloadedSize = p.TotalSizeFromDB
			m.setPackState(p, PackMounted)
			continue
		}
		if !m.dependenciesMounted(name) {
			continue
		}
		entries, _ := m.catalog.FilesOf(name)
		sources := make([]mount.Source, 0, len(entries))
		for _, e := range entries {
			if !m.readyFiles[e.Index] {
				break
			}
			sources = append(sources, mount.Source{LocalPath: m.localPath(e.Name), Entry: e})
		}
		if len(sources) != len(entries) {
			continue
		}
		if err := m.mountSources(name, sources); err != nil {
			m.logger.Warn("Local pack could not be mounted", "pack", name, "err", err)
		}
	}
	m.setInitState(InitReady)
	m.logger.Info("Pack manager ready", "packs", m.catalog.Len())

	for _, name := range m.cfg.PreloadPacks {
		if _, err := m.RequestPack(name, m.cfg.PreloadPriority); err != nil {
			m.logger.Warn("Preload pack not queued", "pack", name, "err", err)
		}
	}
}

// LoadCachedCatalog builds the catalog the local files in packDir were
// downloaded against, without touching the network. It fails with
// fs.ErrNotExist when no init ever completed there.
func LoadCachedCatalog(fsys afero.Fs, packDir string) (*catalog.Catalog, error) {
	raw, err := afero.ReadFile(fsys, filepath.Join(packDir, stateDir, metaFile))
	if err != nil {
		return nil, err
	}
	if len(raw) < superpack.FooterSize {
		return nil, fmt.Errorf("%w: cached superpack metadata is truncated", superpack.ErrFooterCorrupt)
	}
	split := len(raw) - superpack.FooterSize
	footer, err := superpack.ParseFooter(raw[split:])
	if err != nil {
		return nil, err
	}
	ix, err := superpack.ParseIndex(footer, raw[:split])
	if err != nil {
		return nil, err
	}
	return catalog.New(ix)
}
