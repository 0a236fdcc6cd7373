// SPDX-License-Identifier: MPL-2.0

// Package mount exposes downloaded pack files as a read-only virtual file
// system. Mounting a pack validates each file's Lite footer against the
// superpack file table; reads verify and decode the payload and keep recent
// results in an ARC cache.
package mount

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	arc "github.com/hashicorp/golang-lru/arc/v2"
	"github.com/spf13/afero"

	"github.com/invowk/packfetch/internal/superpack"
)

// DefaultCacheEntries is the number of decoded files kept in memory.
const DefaultCacheEntries = 128

var (
	// ErrNotMounted is returned for operations on a pack that is not mounted.
	ErrNotMounted = errors.New("pack not mounted")
	// ErrFileNotFound is returned when no mounted pack provides a file.
	ErrFileNotFound = errors.New("file not found in mounted packs")
	// ErrFooterMismatch is returned when a local file's footer disagrees with
	// the file table.
	ErrFooterMismatch = errors.New("local file does not match file table")
	// ErrAlreadyMounted is returned when mounting a pack twice.
	ErrAlreadyMounted = errors.New("pack already mounted")
)

type (
	// Source is one local file to expose under its superpack name.
	Source struct {
		LocalPath string
		Entry     superpack.FileEntry
	}

	// Mounter is what the pack manager needs from a virtual file system.
	Mounter interface {
		Mount(pack string, files []Source) error
		Unmount(pack string) error
		IsMounted(pack string) bool
	}

	// FileInfo describes a mounted file.
	FileInfo struct {
		Name        string
		Pack        string
		Size        uint32
		StoredSize  uint32
		Compression superpack.CompressionType
	}

	// VFS is a Mounter backed by an afero file system. Reads may happen from
	// any goroutine.
	VFS struct {
		fs     afero.Fs
		cache  *arc.ARCCache[string, []byte]
		logger *log.Logger

		mu    sync.RWMutex
		packs map[string][]string
		files map[string]mountedFile
	}

	// Option configures a VFS.
	Option func(*vfsOptions)

	vfsOptions struct {
		cacheEntries int
		logger       *log.Logger
	}

	mountedFile struct {
		pack   string
		path   string
		footer superpack.LiteFooter
	}

	// FooterMismatchError reports which local file failed validation.
	FooterMismatchError struct {
		Path string
		Err  error
	}
)

func (e *FooterMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: footer does not match file table", e.Path)
}

func (e *FooterMismatchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFooterMismatch, e.Err}
	}
	return []error{ErrFooterMismatch}
}

// WithCacheEntries sets how many decoded files stay cached.
func WithCacheEntries(n int) Option {
	return func(o *vfsOptions) {
		o.cacheEntries = n
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(o *vfsOptions) {
		o.logger = l
	}
}

// NewVFS returns an empty VFS reading through fsys.
func NewVFS(fsys afero.Fs, opts ...Option) (*VFS, error) {
	o := vfsOptions{cacheEntries: DefaultCacheEntries, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := arc.NewARC[string, []byte](o.cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("create mount cache: %w", err)
	}
	return &VFS{
		fs:     fsys,
		cache:  cache,
		logger: o.logger,
		packs:  make(map[string][]string),
		files:  make(map[string]mountedFile),
	}, nil
}

// Mount validates every source and exposes it. Nothing is exposed when any
// source fails validation.
func (v *VFS) Mount(pack string, files []Source) error {
	staged := make(map[string]mountedFile, len(files))
	for _, src := range files {
		footer, err := v.validate(src)
		if err != nil {
			return err
		}
		staged[src.Entry.Name] = mountedFile{pack: pack, path: src.LocalPath, footer: footer}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.packs[pack]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyMounted, pack)
	}
	names := make([]string, 0, len(staged))
	for name := range staged {
		if prev, ok := v.files[name]; ok {
			return fmt.Errorf("file %q of pack %q is already provided by %q", name, pack, prev.pack)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v.files[name] = staged[name]
	}
	v.packs[pack] = names
	v.logger.Debug("Pack mounted", "pack", pack, "files", len(names))
	return nil
}

// Unmount hides every file of pack.
func (v *VFS) Unmount(pack string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	names, ok := v.packs[pack]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotMounted, pack)
	}
	for _, name := range names {
		delete(v.files, name)
		v.cache.Remove(name)
	}
	delete(v.packs, pack)
	return nil
}

// IsMounted reports whether pack is mounted.
func (v *VFS) IsMounted(pack string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.packs[pack]
	return ok
}

// Packs returns the mounted pack names, sorted.
func (v *VFS) Packs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.packs))
	for p := range v.packs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// List returns the file names of a mounted pack, sorted.
func (v *VFS) List(pack string) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names, ok := v.packs[pack]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotMounted, pack)
	}
	return append([]string(nil), names...), nil
}

// Stat describes a mounted file.
func (v *VFS) Stat(name string) (FileInfo, error) {
	v.mu.RLock()
	f, ok := v.files[name]
	v.mu.RUnlock()
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %q", ErrFileNotFound, name)
	}
	return FileInfo{
		Name:        name,
		Pack:        f.pack,
		Size:        f.footer.SizeUncompressed,
		StoredSize:  f.footer.SizeCompressed,
		Compression: f.footer.Compression,
	}, nil
}

// ReadFile returns the decoded contents of a mounted file. The returned
// slice is owned by the caller.
func (v *VFS) ReadFile(name string) ([]byte, error) {
	v.mu.RLock()
	f, ok := v.files[name]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
	}
	if data, hit := v.cache.Get(name); hit {
		return bytes.Clone(data), nil
	}

	payload, err := v.readPayload(f.path, f.footer.SizeCompressed)
	if err != nil {
		return nil, err
	}
	if crc := crc32.ChecksumIEEE(payload); crc != f.footer.CRC32Compressed {
		return nil, &FooterMismatchError{Path: f.path, Err: fmt.Errorf("payload checksum %08x, want %08x", crc, f.footer.CRC32Compressed)}
	}
	data, err := superpack.Decompress(f.footer.Compression, payload, f.footer.SizeUncompressed)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	v.cache.Add(name, data)
	return bytes.Clone(data), nil
}

// Verify checks a finalized local file without mounting it: its size, its
// Lite footer against the entry and the CRC32 of its payload.
func (v *VFS) Verify(src Source) error {
	footer, err := v.validate(src)
	if err != nil {
		return err
	}
	payload, err := v.readPayload(src.LocalPath, footer.SizeCompressed)
	if err != nil {
		return &FooterMismatchError{Path: src.LocalPath, Err: err}
	}
	if crc := crc32.ChecksumIEEE(payload); crc != footer.CRC32Compressed {
		return &FooterMismatchError{Path: src.LocalPath, Err: fmt.Errorf("payload checksum %08x, want %08x", crc, footer.CRC32Compressed)}
	}
	return nil
}

func (v *VFS) validate(src Source) (superpack.LiteFooter, error) {
	f, err := v.fs.Open(src.LocalPath)
	if err != nil {
		return superpack.LiteFooter{}, &FooterMismatchError{Path: src.LocalPath, Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return superpack.LiteFooter{}, &FooterMismatchError{Path: src.LocalPath, Err: err}
	}
	want := int64(src.Entry.CompressedSize) + superpack.LiteFooterSize
	if fi.Size() != want {
		return superpack.LiteFooter{}, &FooterMismatchError{Path: src.LocalPath, Err: fmt.Errorf("size %d, want %d", fi.Size(), want)}
	}
	footer, err := superpack.ReadLiteFooter(f, fi.Size())
	if err != nil {
		return superpack.LiteFooter{}, &FooterMismatchError{Path: src.LocalPath, Err: err}
	}
	if !footer.Matches(src.Entry) {
		return superpack.LiteFooter{}, &FooterMismatchError{Path: src.LocalPath}
	}
	return footer, nil
}

func (v *VFS) readPayload(path string, size uint32) ([]byte, error) {
	f, err := v.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf, nil
}
