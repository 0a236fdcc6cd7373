// SPDX-License-Identifier: MPL-2.0

// Package download fetches byte ranges of a remote file into local files as
// pollable background tasks.
//
// A task is started with [Downloader.ResumeTask], observed with
// [Downloader.TaskStatus], and released with [Downloader.RemoveTask]. Tasks
// never call back into their owner; owners poll from their own goroutine.
package download

import (
	"errors"
	"fmt"
	"syscall"
)

const (
	// TaskJustAdded means the task was accepted but has not touched the network yet.
	TaskJustAdded TaskState = iota
	// TaskDownloading means bytes are being transferred.
	TaskDownloading
	// TaskFinished means the task stopped, successfully or not. Check TaskStatus.Error.
	TaskFinished
)

const (
	// ErrorNone means the task has not failed.
	ErrorNone ErrorKind = iota
	// ErrorCancelled means the task was removed before it finished.
	ErrorCancelled
	// ErrorCantResolveHost means the DNS lookup of the remote host failed.
	ErrorCantResolveHost
	// ErrorCantConnect means no connection to the remote host could be made.
	ErrorCantConnect
	// ErrorContentNotFound means the server answered 404 or 410.
	ErrorContentNotFound
	// ErrorNoRangeSupport means the server ignored the Range header.
	ErrorNoRangeSupport
	// ErrorFileIO means the destination file could not be written. Errno is set.
	ErrorFileIO
	// ErrorCommon covers other HTTP and transport failures.
	ErrorCommon
	// ErrorUnknown is a failure that fits no other kind.
	ErrorUnknown
)

type (
	// TaskID identifies a download task.
	TaskID string

	// TaskState is the coarse progress of a task.
	TaskState int

	// ErrorKind classifies why a task failed.
	ErrorKind int

	// Range selects the bytes a task transfers.
	//
	// With Suffix unset the task fetches Size bytes starting at Offset and
	// appends them to the destination, resuming after whatever the
	// destination already holds. With Suffix set it fetches the last Size
	// bytes of the remote file into a truncated destination and reports the
	// remote file's total size.
	Range struct {
		Offset uint64
		Size   uint64
		Suffix bool
	}

	// TaskError describes a task failure. Errno is set for ErrorFileIO.
	TaskError struct {
		Kind    ErrorKind
		Errno   int
		Message string
	}

	// TaskStatus is a snapshot of a task.
	TaskStatus struct {
		State          TaskState
		SizeDownloaded uint64
		// TotalSize is the remote file size, when the server reported one.
		TotalSize uint64
		Error     TaskError
	}

	// Downloader runs range download tasks.
	Downloader interface {
		// ResumeTask starts a task writing into dest.
		ResumeTask(url, dest string, r Range) (TaskID, error)
		// TaskStatus reports a task's state. ok is false for unknown IDs.
		TaskStatus(id TaskID) (status TaskStatus, ok bool)
		// RemoveTask cancels the task and forgets it. It returns once the task
		// no longer writes to its destination. Unknown IDs are ignored.
		RemoveTask(id TaskID)
	}
)

func (s TaskState) String() string {
	switch s {
	case TaskJustAdded:
		return "just_added"
	case TaskDownloading:
		return "downloading"
	case TaskFinished:
		return "finished"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorCancelled:
		return "cancelled"
	case ErrorCantResolveHost:
		return "cant_resolve_host"
	case ErrorCantConnect:
		return "cant_connect"
	case ErrorContentNotFound:
		return "content_not_found"
	case ErrorNoRangeSupport:
		return "no_range_support"
	case ErrorFileIO:
		return "file_io"
	case ErrorCommon:
		return "common"
	default:
		return "unknown"
	}
}

// Happened reports whether e describes an actual failure.
func (e TaskError) Happened() bool { return e.Kind != ErrorNone }

func (e TaskError) Error() string {
	switch {
	case e.Kind == ErrorFileIO && e.Errno != 0:
		return fmt.Sprintf("download %s (errno %d): %s", e.Kind, e.Errno, e.Message)
	case e.Message != "":
		return fmt.Sprintf("download %s: %s", e.Kind, e.Message)
	default:
		return "download " + e.Kind.String()
	}
}

// Errno extracts the operating system error number from err, or 0.
func Errno(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	var te TaskError
	if errors.As(err, &te) {
		return te.Errno
	}
	return 0
}
