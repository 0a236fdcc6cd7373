// SPDX-License-Identifier: MPL-2.0

package tickloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	step := func(context.Context) (bool, error) { return false, nil }
	if _, err := New(0, step); err == nil {
		t.Error("New(0) should fail")
	}
	if _, err := New(time.Millisecond, nil); err == nil {
		t.Error("New(nil step) should fail")
	}
	lp, err := New(time.Millisecond, step)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if lp.State() != StateCreated {
		t.Errorf("State() = %s, want created", lp.State())
	}
}

func TestLoopFinishesWhenStepIsDone(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	lp, err := New(time.Millisecond, func(context.Context) (bool, error) {
		return n.Add(1) == 5, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := lp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lp.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if lp.State() != StateFinished {
		t.Errorf("State() = %s, want finished", lp.State())
	}
	if got := n.Load(); got != 5 {
		t.Errorf("step called %d times, want 5", got)
	}
}

func TestLoopFailsOnStepError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	lp, err := New(time.Millisecond, func(context.Context) (bool, error) { return false, boom }, WithImmediateFirstStep())
	if err != nil {
		t.Fatal(err)
	}
	if err := lp.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lp.Wait(ctx); !errors.Is(err, boom) {
		t.Fatalf("Wait() error = %v, want %v", err, boom)
	}
	if lp.State() != StateFailed {
		t.Errorf("State() = %s, want failed", lp.State())
	}
	if !errors.Is(lp.LastError(), boom) {
		t.Errorf("LastError() = %v", lp.LastError())
	}
}

func TestStopAndCancel(t *testing.T) {
	t.Parallel()

	step := func(context.Context) (bool, error) { return false, nil }

	t.Run("stop", func(t *testing.T) {
		t.Parallel()
		lp, _ := New(time.Millisecond, step)
		if err := lp.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		lp.Stop()
		if lp.State() != StateStopped {
			t.Errorf("State() = %s, want stopped", lp.State())
		}
		lp.Stop()
		if err := lp.Start(context.Background()); err == nil {
			t.Error("restarting a stopped loop should fail")
		}
	})

	t.Run("stop before start", func(t *testing.T) {
		t.Parallel()
		lp, _ := New(time.Millisecond, step)
		lp.Stop()
		if lp.State() != StateStopped {
			t.Errorf("State() = %s, want stopped", lp.State())
		}
		select {
		case <-lp.Done():
		default:
			t.Error("Done() should be closed")
		}
	})

	t.Run("context cancel", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		lp, _ := New(time.Millisecond, step)
		if err := lp.Start(ctx); err != nil {
			t.Fatal(err)
		}
		cancel()
		<-lp.Done()
		if lp.State() != StateStopped {
			t.Errorf("State() = %s, want stopped", lp.State())
		}
		if !errors.Is(lp.LastError(), context.Canceled) {
			t.Errorf("LastError() = %v", lp.LastError())
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		lp, _ := New(time.Millisecond, step)
		if err := lp.Start(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
	})
}

func TestStateValidate(t *testing.T) {
	t.Parallel()

	for s := StateCreated; s <= StateFailed; s++ {
		if err := s.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", s, err)
		}
	}
	err := State(99).Validate()
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Validate() = %v, want ErrInvalidState", err)
	}
	if State(99).String() != "unknown" {
		t.Errorf("String() = %q", State(99).String())
	}
	if !StateFinished.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("IsTerminal mismatch")
	}
}
