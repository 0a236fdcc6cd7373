// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"errors"
	"fmt"
)

const (
	// PackNotRequested means nobody asked for the pack yet.
	PackNotRequested PackState = iota
	// PackQueued means a request covers the pack but its files are not moving yet.
	PackQueued
	// PackDownloading means at least one file of the pack is being fetched.
	PackDownloading
	// PackCheckingHash means every remaining file is being verified.
	PackCheckingHash
	// PackMounted means the pack is visible in the virtual file system.
	PackMounted
	// PackErrorLoading means the pack's files were complete but mounting failed.
	PackErrorLoading
	// PackOtherError means the pack or one of its dependencies failed to download.
	PackOtherError
)

const (
	// FileWait is the initial status and the status after a stop.
	FileWait FileStatus = iota
	// FileCheckLocalFile looks for an already finalized or fully downloaded local copy.
	FileCheckLocalFile
	// FileLoadingPackFile transfers the payload into the partial file.
	FileLoadingPackFile
	// FileCheckHash verifies the partial file and finalizes it.
	FileCheckHash
	// FileReady is terminal: the final file exists with a valid Lite footer.
	FileReady
	// FileError is terminal until requesting is re-enabled.
	FileError
)

const (
	// InitFirstInit prepares the local pack directory.
	InitFirstInit InitState = iota
	// InitFetchingFooter downloads the superpack footer.
	InitFetchingFooter
	// InitFetchingFileTable downloads the metadata block and file table.
	InitFetchingFileTable
	// InitComparingLocalCatalog reconciles local files with the catalog.
	InitComparingLocalCatalog
	// InitMountingCommonPacks mounts packs that are already complete locally.
	InitMountingCommonPacks
	// InitReady means requests are accepted.
	InitReady
	// InitPaused means init waits for requesting to be re-enabled.
	InitPaused
	// InitError means init failed. RetryInit resumes at the failed step.
	InitError
)

// ErrInvalidState is returned when a state value is not one of the defined states.
var ErrInvalidState = errors.New("invalid state")

type (
	// PackState is the user-visible lifecycle of a pack.
	PackState int32

	// FileStatus is the per-file download state.
	FileStatus int32

	// InitState is the manager's startup lifecycle.
	InitState int32

	// InvalidStateError is returned when a state value is not recognized.
	// It wraps ErrInvalidState for errors.Is() compatibility.
	InvalidStateError struct {
		Kind  string
		Value int32
	}
)

func (s PackState) String() string {
	switch s {
	case PackNotRequested:
		return "not_requested"
	case PackQueued:
		return "queued"
	case PackDownloading:
		return "downloading"
	case PackCheckingHash:
		return "checking_hash"
	case PackMounted:
		return "mounted"
	case PackErrorLoading:
		return "error_loading"
	case PackOtherError:
		return "other_error"
	default:
		return "unknown"
	}
}

// Validate returns nil if s is a defined pack state.
func (s PackState) Validate() error {
	if s < PackNotRequested || s > PackOtherError {
		return &InvalidStateError{Kind: "pack", Value: int32(s)}
	}
	return nil
}

// IsError reports whether s is one of the failure states.
func (s PackState) IsError() bool {
	return s == PackErrorLoading || s == PackOtherError
}

func (s FileStatus) String() string {
	switch s {
	case FileWait:
		return "wait"
	case FileCheckLocalFile:
		return "check_local_file"
	case FileLoadingPackFile:
		return "loading_pack_file"
	case FileCheckHash:
		return "check_hash"
	case FileReady:
		return "ready"
	case FileError:
		return "error"
	default:
		return "unknown"
	}
}

// Validate returns nil if s is a defined file status.
func (s FileStatus) Validate() error {
	if s < FileWait || s > FileError {
		return &InvalidStateError{Kind: "file", Value: int32(s)}
	}
	return nil
}

// IsTerminal returns true for Ready and Error.
func (s FileStatus) IsTerminal() bool {
	return s == FileReady || s == FileError
}

func (s InitState) String() string {
	switch s {
	case InitFirstInit:
		return "first_init"
	case InitFetchingFooter:
		return "fetching_footer"
	case InitFetchingFileTable:
		return "fetching_file_table"
	case InitComparingLocalCatalog:
		return "comparing_local_catalog"
	case InitMountingCommonPacks:
		return "mounting_common_packs"
	case InitReady:
		return "ready"
	case InitPaused:
		return "paused"
	case InitError:
		return "error"
	default:
		return "unknown"
	}
}

// Validate returns nil if s is a defined init state.
func (s InitState) Validate() error {
	if s < InitFirstInit || s > InitError {
		return &InvalidStateError{Kind: "init", Value: int32(s)}
	}
	return nil
}

// Error implements the error interface for InvalidStateError.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid %s state %d", e.Kind, e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}
