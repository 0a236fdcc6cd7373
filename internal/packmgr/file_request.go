// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/packfetch/internal/download"
	"github.com/invowk/packfetch/internal/superpack"
)

// partSuffix marks a payload that is still downloading or not yet verified.
const partSuffix = ".part"

type (
	// fileHost is what a FileRequest needs from the manager driving it.
	fileHost interface {
		filesystem() afero.Fs
		downloader() download.Downloader
		requestingEnabled() bool
		// reportIOError counts a local I/O failure and reports whether the
		// breaker tripped.
		reportIOError(path string, errno int, err error) bool
		fileReady(index uint32)
		log() *log.Logger
	}

	// FileRequest drives one superpack file from nothing to a finalized
	// local file. Every Update call performs at most one state step.
	FileRequest struct {
		host fileHost
		url  string

		localPath              string
		name                   string
		fileIndex              uint32
		startLoadingPos        uint64
		sizeOfCompressedFile   uint32
		sizeOfUncompressedFile uint32
		compressedCRC32        uint32
		compressionType        superpack.CompressionType

		downloadedFileSize uint64
		task               download.TaskID
		status             FileStatus
		err                error
	}
)

func newFileRequest(host fileHost, url, dir string, e superpack.FileEntry) *FileRequest {
	return &FileRequest{
		host:                   host,
		url:                    url,
		localPath:              filepath.Join(dir, filepath.FromSlash(e.Name)),
		name:                   e.Name,
		fileIndex:              e.Index,
		startLoadingPos:        e.StartPosition,
		sizeOfCompressedFile:   e.CompressedSize,
		sizeOfUncompressedFile: e.OriginalSize,
		compressedCRC32:        e.CompressedCRC32,
		compressionType:        e.Compression,
	}
}

// Name is the file's superpack name.
func (r *FileRequest) Name() string { return r.name }

// LocalPath is where the finalized file lives.
func (r *FileRequest) LocalPath() string { return r.localPath }

// FileIndex is the file's position in the superpack file table.
func (r *FileRequest) FileIndex() uint32 { return r.fileIndex }

// Status returns the current step.
func (r *FileRequest) Status() FileStatus { return r.status }

// Size is the stored payload size.
func (r *FileRequest) Size() uint32 { return r.sizeOfCompressedFile }

// DownloadedSize is the number of payload bytes known to be on disk. It only grows.
func (r *FileRequest) DownloadedSize() uint64 { return r.downloadedFileSize }

// Err is the reason for FileError.
func (r *FileRequest) Err() error { return r.err }

func (r *FileRequest) partPath() string { return r.localPath + partSuffix }

func (r *FileRequest) source() (string, superpack.FileEntry) {
	return r.localPath, superpack.FileEntry{
		Index:           r.fileIndex,
		Name:            r.name,
		StartPosition:   r.startLoadingPos,
		CompressedSize:  r.sizeOfCompressedFile,
		OriginalSize:    r.sizeOfUncompressedFile,
		CompressedCRC32: r.compressedCRC32,
		Compression:     r.compressionType,
	}
}

// Update advances the request by one step and reports whether its status or
// downloaded size changed.
func (r *FileRequest) Update() bool {
	before, beforeSize := r.status, r.downloadedFileSize
	switch r.status {
	case FileWait:
		r.status = FileCheckLocalFile
	case FileCheckLocalFile:
		r.checkLocalFile()
	case FileLoadingPackFile:
		r.loadPackFile()
	case FileCheckHash:
		r.checkHash()
	case FileReady, FileError:
	}
	return r.status != before || r.downloadedFileSize != beforeSize
}

func (r *FileRequest) checkLocalFile() {
	fsys := r.host.filesystem()

	fi, err := fsys.Stat(r.localPath)
	switch {
	case err == nil && fi.Size() == int64(r.sizeOfCompressedFile)+superpack.LiteFooterSize:
		r.becomeReady()
		return
	case err == nil:
		r.host.log().Debug("Removing stale local file", "path", r.localPath, "size", fi.Size())
		if rmErr := fsys.Remove(r.localPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			r.ioFailure(r.localPath, rmErr)
			return
		}
	case !errors.Is(err, fs.ErrNotExist):
		r.ioFailure(r.localPath, err)
		return
	}

	if fi, err := fsys.Stat(r.partPath()); err == nil && fi.Size() == int64(r.sizeOfCompressedFile) {
		// downloaded before a restart but never verified
		r.downloadedFileSize = max(r.downloadedFileSize, uint64(fi.Size()))
		r.status = FileCheckHash
		return
	}
	r.status = FileLoadingPackFile
}

func (r *FileRequest) loadPackFile() {
	if !r.host.requestingEnabled() {
		return
	}
	fsys := r.host.filesystem()
	part := r.partPath()

	if r.sizeOfCompressedFile == 0 {
		if err := writeEmpty(fsys, part); err != nil {
			r.ioFailure(part, err)
			return
		}
		r.status = FileCheckHash
		return
	}

	dl := r.host.downloader()
	if r.task == "" {
		if err := fsys.MkdirAll(filepath.Dir(part), 0o755); err != nil {
			r.ioFailure(filepath.Dir(part), err)
			return
		}
		id, err := dl.ResumeTask(r.url, part, download.Range{
			Offset: r.startLoadingPos,
			Size:   uint64(r.sizeOfCompressedFile),
		})
		if err != nil {
			r.host.log().Warn("Could not start download", "file", r.name, "err", err)
			return
		}
		r.task = id
		return
	}

	st, ok := dl.TaskStatus(r.task)
	if !ok {
		r.task = ""
		return
	}
	if st.SizeDownloaded > r.downloadedFileSize {
		r.downloadedFileSize = st.SizeDownloaded
	}
	if st.State != download.TaskFinished {
		return
	}
	dl.RemoveTask(r.task)
	r.task = ""

	if !st.Error.Happened() {
		r.status = FileCheckHash
		return
	}
	switch st.Error.Kind {
	case download.ErrorFileIO:
		r.ioFailure(part, st.Error)
	case download.ErrorContentNotFound:
		r.host.log().Error("File missing on server", "file", r.name, "err", st.Error)
		r.fail(st.Error)
	default:
		r.host.log().Warn("Download failed, restarting file", "file", r.name, "kind", st.Error.Kind, "err", st.Error)
		r.removePart()
	}
}

func (r *FileRequest) checkHash() {
	fsys := r.host.filesystem()
	part := r.partPath()

	f, err := fsys.Open(part)
	if errors.Is(err, fs.ErrNotExist) {
		r.status = FileLoadingPackFile
		return
	}
	if err != nil {
		r.ioFailure(part, err)
		return
	}
	h := crc32.NewIEEE()
	n, err := io.Copy(h, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		r.ioFailure(part, err)
		return
	}

	if n != int64(r.sizeOfCompressedFile) || h.Sum32() != r.compressedCRC32 {
		r.host.log().Warn("Checksum mismatch, downloading again",
			"file", r.name,
			"size", n,
			"want_size", r.sizeOfCompressedFile,
			"crc", fmt.Sprintf("%08x", h.Sum32()),
			"want_crc", fmt.Sprintf("%08x", r.compressedCRC32))
		r.removePart()
		r.status = FileLoadingPackFile
		return
	}

	footer := superpack.LiteFooter{
		Compression:      r.compressionType,
		CRC32Compressed:  r.compressedCRC32,
		SizeUncompressed: r.sizeOfUncompressedFile,
		SizeCompressed:   r.sizeOfCompressedFile,
	}
	if err := appendFooter(fsys, part, footer); err != nil {
		r.ioFailure(part, err)
		return
	}
	if err := fsys.Rename(part, r.localPath); err != nil {
		r.ioFailure(r.localPath, err)
		return
	}
	r.becomeReady()
}

func (r *FileRequest) becomeReady() {
	r.downloadedFileSize = max(r.downloadedFileSize, uint64(r.sizeOfCompressedFile))
	r.status = FileReady
	r.err = nil
	r.host.fileReady(r.fileIndex)
}

func (r *FileRequest) fail(err error) {
	r.status = FileError
	r.err = err
}

// ioFailure feeds the breaker. Below the threshold the partial file is
// discarded and the download starts over.
func (r *FileRequest) ioFailure(path string, err error) {
	if r.host.reportIOError(path, download.Errno(err), err) {
		r.fail(fmt.Errorf("local I/O on %s: %w", path, err))
		return
	}
	r.removePart()
	r.status = FileLoadingPackFile
}

func (r *FileRequest) removePart() {
	if err := r.host.filesystem().Remove(r.partPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.host.log().Debug("Could not remove partial file", "path", r.partPath(), "err", err)
	}
}

// stop cancels any task and rewinds non-terminal progress to FileWait.
func (r *FileRequest) stop() {
	if r.task != "" {
		r.host.downloader().RemoveTask(r.task)
		r.task = ""
	}
	if !r.status.IsTerminal() {
		r.status = FileWait
	}
}

// reset is stop plus clearing a previous error.
func (r *FileRequest) reset() {
	r.stop()
	if r.status == FileError {
		r.status = FileWait
		r.err = nil
	}
}

func writeEmpty(fsys afero.Fs, path string) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func appendFooter(fsys afero.Fs, path string, footer superpack.LiteFooter) error {
	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(footer.Bytes()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
