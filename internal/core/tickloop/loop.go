// SPDX-License-Identifier: MPL-2.0

package tickloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type (
	// StepFunc advances the driven component once. Returning done stops the
	// loop in StateFinished; returning an error stops it in StateFailed.
	StepFunc func(ctx context.Context) (done bool, err error)

	// Loop calls a StepFunc every interval on a single goroutine.
	//
	// A Loop is single-use: once it reached a terminal state, create a new one.
	Loop struct {
		state atomic.Int32

		interval  time.Duration
		step      StepFunc
		immediate bool
		logger    *log.Logger

		mu      sync.Mutex
		lastErr error
		cancel  context.CancelFunc
		doneCh  chan struct{}
	}
)

// New creates a Loop. interval must be positive and step non-nil.
func New(interval time.Duration, step StepFunc, opts ...Option) (*Loop, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", interval)
	}
	if step == nil {
		return nil, errors.New("step function is required")
	}
	lp := &Loop{
		interval: interval,
		step:     step,
		logger:   log.New(io.Discard),
		doneCh:   make(chan struct{}),
	}
	lp.state.Store(int32(StateCreated))
	for _, opt := range opts {
		opt(lp)
	}
	return lp, nil
}

// State returns the current loop state.
func (lp *Loop) State() State {
	return State(lp.state.Load())
}

// LastError returns the error that moved the loop to StateFailed, or the
// context error when it was cancelled.
func (lp *Loop) LastError() error {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.lastErr
}

// Done is closed when the loop goroutine exits.
func (lp *Loop) Done() <-chan struct{} {
	return lp.doneCh
}

// Start launches the loop goroutine. The loop stops when ctx is cancelled.
func (lp *Loop) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled before start: %w", ctx.Err())
	default:
	}
	loopCtx, cancel := context.WithCancel(ctx)
	lp.mu.Lock()
	if !lp.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		lp.mu.Unlock()
		cancel()
		return fmt.Errorf("cannot start loop in state %s", lp.State())
	}
	lp.cancel = cancel
	lp.mu.Unlock()

	lp.logger.Debug("Tick loop started", "interval", lp.interval)
	go lp.run(loopCtx)
	return nil
}

// Stop asks the loop to exit after the current step and waits for it.
func (lp *Loop) Stop() {
	for {
		s := lp.State()
		switch s {
		case StateCreated:
			if lp.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				close(lp.doneCh)
				return
			}
			continue
		case StateRunning:
			if !lp.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
				continue
			}
			lp.mu.Lock()
			cancel := lp.cancel
			lp.mu.Unlock()
			cancel()
		default:
		}
		<-lp.doneCh
		return
	}
}

// Wait blocks until the loop exits or ctx is done. It returns the step
// error when the loop failed.
func (lp *Loop) Wait(ctx context.Context) error {
	select {
	case <-lp.doneCh:
		if lp.State() == StateFailed {
			return lp.LastError()
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tick loop: %w", ctx.Err())
	}
}

func (lp *Loop) run(ctx context.Context) {
	defer close(lp.doneCh)

	ticker := time.NewTicker(lp.interval)
	defer ticker.Stop()

	if lp.immediate && lp.tick(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			lp.finish(StateStopped, ctx.Err())
			return
		case <-ticker.C:
			if lp.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one step and reports whether the loop must exit.
func (lp *Loop) tick(ctx context.Context) bool {
	done, err := lp.step(ctx)
	switch {
	case err != nil:
		lp.logger.Error("Tick loop step failed", "err", err)
		lp.finish(StateFailed, err)
		return true
	case done:
		lp.finish(StateFinished, nil)
		return true
	default:
		return false
	}
}

func (lp *Loop) finish(s State, err error) {
	lp.mu.Lock()
	lp.lastErr = err
	if lp.cancel != nil {
		lp.cancel()
	}
	lp.mu.Unlock()
	lp.state.Store(int32(s))
	lp.logger.Debug("Tick loop exited", "state", s)
}
