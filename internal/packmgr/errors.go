// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrInitNotReady is returned by queries that need the catalog before
	// init reached InitReady.
	ErrInitNotReady = errors.New("pack catalog is not initialized yet")
	// ErrRequestingDisabled is returned when requesting was switched off,
	// for example after the local I/O breaker tripped.
	ErrRequestingDisabled = errors.New("requesting is disabled")
	// ErrNoRequest is returned when no queued request exists for a pack.
	ErrNoRequest = errors.New("no request for pack")
	// ErrInitNotFailed is returned by RetryInit when init is not in InitError.
	ErrInitNotFailed = errors.New("init has not failed")
	// ErrFatalIO is the sentinel wrapped by FatalIOError.
	ErrFatalIO = errors.New("repeated local I/O failure")
)

type (
	// FatalIOError is raised when consecutive local file errors reach the
	// breaker threshold. Requesting stays disabled until re-enabled.
	FatalIOError struct {
		Path  string
		Errno int
		Err   error
	}

	// PackError reports why a request for a pack failed.
	PackError struct {
		Pack string
		// Failed is the pack that actually broke. It differs from Pack when a
		// dependency failed.
		Failed string
		Err    error
	}

	// InitStepError wraps the cause of a failed init step.
	InitStepError struct {
		Step InitState
		Err  error
	}
)

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("local I/O failure on %s (errno %d): %v", e.Path, e.Errno, e.Err)
}

func (e *FatalIOError) Unwrap() []error { return []error{ErrFatalIO, e.Err} }

func (e *PackError) Error() string {
	if e.Failed != "" && e.Failed != e.Pack {
		return fmt.Sprintf("pack %q: dependency %q failed: %v", e.Pack, e.Failed, e.Err)
	}
	return fmt.Sprintf("pack %q: %v", e.Pack, e.Err)
}

func (e *PackError) Unwrap() error { return e.Err }

func (e *InitStepError) Error() string {
	return fmt.Sprintf("init step %s failed: %v", e.Step, e.Err)
}

func (e *InitStepError) Unwrap() error { return e.Err }
