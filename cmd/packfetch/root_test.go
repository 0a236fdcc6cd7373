// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/fang"

	"github.com/invowk/packfetch/internal/issue"
)

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2025-06-15T10:00:00Z"

		got := getVersionString()
		want := "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"
		if got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		Version = "dev"
		if got := getVersionString(); got != "dev (built from source)" {
			t.Errorf("getVersionString() = %q", got)
		}
	})
}

func TestExitError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := error(&ExitError{Code: ExitBreakerTripped, Err: cause})
	if err.Error() != "boom" {
		t.Errorf("Error() = %q, want boom", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("ExitError does not unwrap to its cause")
	}
	if got := (&ExitError{Code: ExitPackError}).Error(); got != "exit status 2" {
		t.Errorf("Error() without cause = %q", got)
	}
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	app, err := NewApp(Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	root := NewRootCommand(app)
	for _, name := range []string{"fetch", "list", "verify", "build", "config"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "verbose", "pack-dir", "url"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestErrorHandlerFormatsActionableErrors(t *testing.T) {
	t.Parallel()

	app, err := NewApp(Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	app.effectiveConfig().UI.Verbose = true

	actionable := issue.NewErrorContext().
		WithOperation("request pack").
		WithResource("nope").
		WithSuggestion("Run 'packfetch list' to see the available packs").
		WithIssue(issue.PackNotFoundId).
		Wrap(errors.New("unknown pack")).
		Build()

	var buf bytes.Buffer
	errorHandler(app)(&buf, fang.Styles{}, &ExitError{Code: ExitPackError, Err: actionable})
	out := buf.String()
	for _, want := range []string{"failed to request pack: nope", "packfetch list", "Unknown pack"} {
		if !strings.Contains(out, want) {
			t.Errorf("error output missing %q:\n%s", want, out)
		}
	}
}
