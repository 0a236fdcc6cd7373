// SPDX-License-Identifier: MPL-2.0

package tickloop

import (
	"errors"
	"fmt"
)

const (
	// StateCreated indicates the loop was created but Start() not called.
	StateCreated State = iota
	// StateRunning indicates the loop goroutine is stepping.
	StateRunning
	// StateStopping indicates Stop() was called or the context was cancelled.
	StateStopping
	// StateStopped is terminal: the loop was stopped before the step finished.
	StateStopped
	// StateFinished is terminal: the step function reported done.
	StateFinished
	// StateFailed is terminal: the step function returned an error.
	StateFailed
)

// ErrInvalidState is returned when a State value is not one of the defined loop states.
var ErrInvalidState = errors.New("invalid loop state")

type (
	// State represents the lifecycle state of a Loop.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	// It wraps ErrInvalidState for errors.Is() compatibility.
	InvalidStateError struct {
		Value State
	}
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid loop state %d (valid: 0=created, 1=running, 2=stopping, 3=stopped, 4=finished, 5=failed)", e.Value)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// Validate returns nil if the State is one of the defined states.
func (s State) Validate() error {
	switch s {
	case StateCreated, StateRunning, StateStopping, StateStopped, StateFinished, StateFailed:
		return nil
	default:
		return &InvalidStateError{Value: s}
	}
}

// IsTerminal returns true once the loop goroutine has exited.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFinished || s == StateFailed
}
