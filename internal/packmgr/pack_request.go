// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"golang.org/x/exp/slices"
)

type (
	// PackRequest asks for one pack and, implicitly, every pack it depends
	// on. Its files are created on first activation and advanced by the
	// manager while the request is at the head of the queue.
	PackRequest struct {
		mgr *Manager

		requestedPackName string
		priority          float32
		// dependencyCache holds the transitive dependencies, each after its
		// own dependencies.
		dependencyCache []string
		totalSize       uint64

		segments []*segment
		started  bool
		err      error
	}

	// segment is the slice of a request's files that belongs to one pack.
	segment struct {
		pack  string
		files []*FileRequest
	}
)

// Name is the requested pack.
func (r *PackRequest) Name() string { return r.requestedPackName }

// Priority is the scheduling priority. Higher runs first.
func (r *PackRequest) Priority() float32 { return r.priority }

// Dependencies returns the transitive dependencies loaded before the pack.
func (r *PackRequest) Dependencies() []string { return slices.Clone(r.dependencyCache) }

// Err returns why the request failed, or nil.
func (r *PackRequest) Err() error { return r.err }

// Activated reports whether the request's files exist.
func (r *PackRequest) Activated() bool { return r.segments != nil }

// Files returns every file request in load order. It is empty before activation.
func (r *PackRequest) Files() []*FileRequest {
	var out []*FileRequest
	for _, s := range r.segments {
		out = append(out, s.files...)
	}
	return out
}

// TotalSize is the stored size of every file the request covers.
func (r *PackRequest) TotalSize() uint64 { return r.totalSize }

// DownloadedSize sums the downloaded bytes of every file request.
func (r *PackRequest) DownloadedSize() uint64 {
	var n uint64
	for _, s := range r.segments {
		n += s.downloaded()
	}
	return n
}

// Progress returns the downloaded fraction in [0, 1].
func (r *PackRequest) Progress() float64 {
	if r.IsDownloaded() {
		return 1
	}
	if r.totalSize == 0 {
		return 0
	}
	return min(1, float64(r.DownloadedSize())/float64(r.totalSize))
}

// IsDownloaded reports whether every file is Ready and every pack of the
// request is mounted.
func (r *PackRequest) IsDownloaded() bool {
	if r.segments == nil {
		return false
	}
	for _, s := range r.segments {
		if r.mgr.packs[s.pack].State != PackMounted || !s.allIn(FileReady) {
			return false
		}
	}
	return true
}

func (r *PackRequest) packs() []string {
	return append(slices.Clone(r.dependencyCache), r.requestedPackName)
}

// activate expands the request into file requests on first use.
func (r *PackRequest) activate() {
	if r.segments != nil {
		return
	}
	r.segments = make([]*segment, 0, len(r.dependencyCache)+1)
	for _, name := range r.packs() {
		entries, _ := r.mgr.catalog.FilesOf(name)
		s := &segment{pack: name, files: make([]*FileRequest, len(entries))}
		for i, e := range entries {
			s.files[i] = newFileRequest(r.mgr, r.mgr.cfg.SuperpackURL, r.mgr.cfg.PackDir, e)
		}
		r.segments = append(r.segments, s)
	}
}

// Update performs one scheduling step over the request's segments, in
// dependency order. A pack's files only start moving once every pack before
// it is mounted. It reports whether anything progressed.
func (r *PackRequest) Update() bool {
	if r.err != nil {
		return false
	}
	r.activate()
	m := r.mgr

	progressed := false
	for _, s := range r.segments {
		pack := m.packs[s.pack]
		if pack.State == PackMounted {
			// mounted by an earlier request; only local checks remain
			progressed = s.step() || progressed
			continue
		}
		if !m.dependenciesMounted(s.pack) {
			break
		}
		if pack.State.IsError() {
			r.failAt(s.pack, errorFromPack(pack))
			return true
		}

		progressed = s.step() || progressed
		if !m.requestingEnabled() {
			return progressed
		}
		m.refreshPack(pack, s)

		if f := s.failed(); f != nil {
			m.setPackError(s.pack, PackOtherError, f.Err())
			r.failAt(s.pack, f.Err())
			return true
		}
		if s.allIn(FileReady) {
			if err := m.mountPack(s.pack, s.files); err != nil {
				r.failAt(s.pack, err)
				return true
			}
			progressed = true
			continue
		}
		break
	}
	return progressed
}

// failAt marks the request failed because pack broke, and propagates the
// failure to every later pack of the request that depends on it.
func (r *PackRequest) failAt(failed string, cause error) {
	m := r.mgr
	for _, name := range r.packs() {
		if name == failed {
			continue
		}
		if dependent, _ := m.catalog.IsAncestor(failed, name); dependent && m.packs[name].State != PackMounted {
			m.setPackError(name, PackOtherError, &PackError{Pack: name, Failed: failed, Err: cause})
		}
	}
	r.err = &PackError{Pack: r.requestedPackName, Failed: failed, Err: cause}
	r.stop()
}

// stop cancels every running task of the request. Progress is kept.
func (r *PackRequest) stop() {
	for _, s := range r.segments {
		for _, f := range s.files {
			f.stop()
		}
		if p := r.mgr.packs[s.pack]; p.State == PackDownloading || p.State == PackCheckingHash {
			r.mgr.setPackState(p, PackQueued)
		}
	}
}

// reset clears file errors so the request can run again.
func (r *PackRequest) reset() {
	for _, s := range r.segments {
		for _, f := range s.files {
			f.reset()
		}
	}
}

func (s *segment) step() bool {
	progressed := false
	for _, f := range s.files {
		if !f.host.requestingEnabled() {
			break
		}
		if !f.Status().IsTerminal() {
			progressed = f.Update() || progressed
		}
	}
	return progressed
}

func (s *segment) allIn(status FileStatus) bool {
	for _, f := range s.files {
		if f.Status() != status {
			return false
		}
	}
	return true
}

func (s *segment) failed() *FileRequest {
	for _, f := range s.files {
		if f.Status() == FileError {
			return f
		}
	}
	return nil
}

func (s *segment) downloaded() uint64 {
	var n uint64
	for _, f := range s.files {
		n += f.DownloadedSize()
	}
	return n
}

// packStateFor derives the visible pack state from the file statuses.
func (s *segment) packStateFor() PackState {
	active, hashing := false, false
	for _, f := range s.files {
		switch f.Status() {
		case FileCheckLocalFile, FileLoadingPackFile:
			active = true
		case FileCheckHash:
			hashing = true
		case FileWait, FileReady, FileError:
		}
	}
	switch {
	case active:
		return PackDownloading
	case hashing:
		return PackCheckingHash
	default:
		return PackQueued
	}
}
