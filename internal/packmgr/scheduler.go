// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/exp/slices"

	"github.com/invowk/packfetch/internal/mount"
)

// byPriority orders higher priorities first.
func byPriority(a, b *PackRequest) int {
	return cmp.Compare(b.priority, a.priority)
}

func (m *Manager) head() *PackRequest {
	if len(m.queue) == 0 {
		return nil
	}
	return m.queue[0]
}

func (m *Manager) findRequest(name string) *PackRequest {
	for _, r := range m.queue {
		if r.requestedPackName == name {
			return r
		}
	}
	return nil
}

// enqueue inserts r after every request of equal or higher priority.
func (m *Manager) enqueue(r *PackRequest) {
	head := m.head()
	i := len(m.queue)
	for j, q := range m.queue {
		if q.priority < r.priority {
			i = j
			break
		}
	}
	m.queue = slices.Insert(m.queue, i, r)
	m.preempted(head)
}

// preempted pauses the previous head if it lost its place.
func (m *Manager) preempted(prev *PackRequest) {
	if prev == nil || m.head() == prev {
		return
	}
	m.logger.Debug("Request preempted", "pack", prev.requestedPackName, "by", m.head().requestedPackName)
	prev.stop()
}

func (m *Manager) removeRequest(r *PackRequest) {
	if i := slices.Index(m.queue, r); i >= 0 {
		m.queue = slices.Delete(m.queue, i, i+1)
	}
}

// release returns packs of a cancelled request to PackNotRequested unless
// they are mounted or another request still covers them.
func (m *Manager) release(r *PackRequest) {
	for _, name := range r.packs() {
		pack := m.packs[name]
		if pack.State == PackMounted || pack.State.IsError() {
			continue
		}
		covered := slices.ContainsFunc(m.queue, func(q *PackRequest) bool {
			return slices.Contains(q.packs(), name)
		})
		if covered {
			continue
		}
		if pack.DownloadedSize != 0 {
			pack.DownloadedSize = 0
			m.observer.PackDownloadChanged(pack.snapshot())
		}
		m.setPackState(pack, PackNotRequested)
	}
}

func (m *Manager) stopAll() {
	for _, r := range m.queue {
		r.stop()
	}
}

func (m *Manager) stepQueue() {
	r := m.head()
	if r == nil {
		return
	}
	if !r.started {
		r.started = true
		m.logger.Info("Loading pack", "pack", r.requestedPackName, "dependencies", r.dependencyCache)
		m.observer.RequestStartLoading(m.packs[r.requestedPackName].snapshot())
	}

	if r.Update() {
		m.observer.RequestProgressChanged(r)
	}

	switch {
	case r.err != nil:
		m.logger.Error("Pack request failed", "pack", r.requestedPackName, "err", r.err)
		m.removeRequest(r)
		m.release(r)
	case r.IsDownloaded():
		m.logger.Info("Pack ready", "pack", r.requestedPackName)
		m.removeRequest(r)
	}
}

// reportIOError implements fileHost. It trips the breaker once
// BreakerThreshold consecutive errors happened without a file becoming ready.
func (m *Manager) reportIOError(path string, errno int, err error) bool {
	if m.fatal != nil {
		return true
	}
	m.breakerCount++
	m.logger.Warn("Local file error", "path", path, "errno", errno, "count", m.breakerCount, "threshold", m.cfg.BreakerThreshold, "err", err)
	if m.breakerCount < m.cfg.BreakerThreshold {
		return false
	}

	m.fatal = &FatalIOError{Path: path, Errno: errno, Err: err}
	m.enabled = false
	m.stopAll()
	m.logger.Error("Too many local file errors, requesting disabled", "path", path, "errno", errno)
	m.observer.FileErrorOccurred(path, errno)
	return true
}

func (m *Manager) setPackState(p *Pack, s PackState) {
	if p.State == s {
		return
	}
	m.logger.Debug("Pack state changed", "pack", p.Name, "from", p.State, "to", s)
	p.State = s
	m.observer.PackStateChanged(p.snapshot())
}

func (m *Manager) setPackError(name string, s PackState, err error) {
	p := m.packs[name]
	p.ErrorMessage = err.Error()
	m.setPackState(p, s)
}

// refreshPack publishes download progress and the derived state of a
// pack whose files are moving.
func (m *Manager) refreshPack(p *Pack, s *segment) {
	if p.State == PackMounted {
		return
	}
	if n := s.downloaded(); n > p.DownloadedSize {
		p.DownloadedSize = n
		m.observer.PackDownloadChanged(p.snapshot())
	}
	switch st := s.packStateFor(); st {
	case PackDownloading, PackCheckingHash:
		m.setPackState(p, st)
	default:
	}
}

func (m *Manager) dependenciesMounted(name string) bool {
	for _, d := range m.packs[name].Dependencies {
		if m.packs[d].State != PackMounted {
			return false
		}
	}
	return true
}

// mountPack exposes a pack whose file requests are all Ready.
func (m *Manager) mountPack(name string, files []*FileRequest) error {
	sources := make([]mount.Source, len(files))
	for i, f := range files {
		sources[i].LocalPath, sources[i].Entry = f.source()
	}
	return m.mountSources(name, sources)
}

func (m *Manager) mountSources(name string, sources []mount.Source) error {
	p := m.packs[name]
	if !m.dependenciesMounted(name) {
		return fmt.Errorf("pack %q cannot be mounted before its dependencies", name)
	}
	if err := m.mounter.Mount(name, sources); err != nil {
		m.logger.Error("Mount failed", "pack", name, "err", err)
		m.discardRejected(err)
		m.setPackError(name, PackErrorLoading, err)
		return err
	}
	if p.DownloadedSize != p.TotalSizeFromDB {
		p.DownloadedSize = p.TotalSizeFromDB
		m.observer.PackDownloadChanged(p.snapshot())
	}
	m.setPackState(p, PackMounted)
	m.logger.Info("Pack mounted", "pack", name, "files", len(sources))
	return nil
}

// discardRejected deletes a local file the mounter found inconsistent so the
// next request downloads it again.
func (m *Manager) discardRejected(err error) {
	var mismatch *mount.FooterMismatchError
	if !errors.As(err, &mismatch) {
		return
	}
	if rmErr := m.fs.Remove(mismatch.Path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		m.logger.Warn("Could not remove rejected file", "path", mismatch.Path, "err", rmErr)
	}
	for i, f := range m.catalog.Files() {
		if m.localPath(f.Name) == mismatch.Path {
			m.readyFiles[i] = false
		}
	}
}

func errorFromPack(p *Pack) error {
	if p.ErrorMessage != "" {
		return errors.New(p.ErrorMessage)
	}
	return fmt.Errorf("pack is in state %s", p.State)
}
