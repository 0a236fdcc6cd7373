// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/invowk/packfetch/internal/superpack"
)

func TestListShowsPacks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, buildSuperpack(t), nil)
	if err := env.run("list", "--raw"); err != nil {
		t.Fatalf("list error = %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{
		"| Pack | Depends on | Files | Size | State |",
		"| common | - | 1 |",
		"| ui | common | 2 |",
		"not downloaded",
		"3 packs, 4 files",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	if err := env.run("fetch", "audio"); err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	if err := env.run("list"); err != nil {
		t.Fatalf("rendered list error = %v", err)
	}
	if !strings.Contains(env.stdout.String(), "downloaded") || !strings.Contains(env.stdout.String(), "audio") {
		t.Errorf("rendered list output:\n%s", env.stdout.String())
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, buildSuperpack(t), nil)

	err := env.run("verify")
	if err == nil || !strings.Contains(err.Error(), "saved file table") {
		t.Fatalf("verify before any fetch error = %v", err)
	}

	if err := env.run("fetch", "ui"); err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	if err := env.run("verify"); err != nil {
		t.Fatalf("verify error = %v", err)
	}
	if !strings.Contains(env.stdout.String(), "3 ok, 0 corrupt, 1 not downloaded") {
		t.Errorf("verify output:\n%s", env.stdout.String())
	}

	raw, err := afero.ReadFile(env.fs, "/packs/ui/layout.json")
	if err != nil {
		t.Fatal(err)
	}
	raw[0] ^= 0xff
	if err := afero.WriteFile(env.fs, "/packs/ui/layout.json", raw, 0o644); err != nil {
		t.Fatal(err)
	}

	err = env.run("verify")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitPackError {
		t.Fatalf("verify of a corrupt file error = %v, want code %d", err, ExitPackError)
	}
	if !strings.Contains(env.stdout.String(), "ui/layout.json") {
		t.Errorf("verify did not name the corrupt file:\n%s", env.stdout.String())
	}

	if err := env.run("verify", "--fix"); err != nil {
		t.Fatalf("verify --fix error = %v", err)
	}
	if env.exists("/packs/ui/layout.json") {
		t.Error("verify --fix kept the corrupt file")
	}

	// The next fetch downloads the removed file again.
	if err := env.run("fetch", "ui"); err != nil {
		t.Fatalf("refetch error = %v", err)
	}
	if !env.exists("/packs/ui/layout.json") {
		t.Error("refetch did not restore the file")
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	files := map[string]string{
		"/src/superpack.toml": `
[[pack]]
name = "ui"
dir = "ui"
depends = ["common"]
compression = "lz4"

[[pack]]
name = "common"
dir = "common"
compression = "rfc1951"
`,
		"/src/common/strings.txt": strings.Repeat("text ", 100),
		"/src/ui/layout.json":     strings.Repeat("{}", 100),
	}
	for name, content := range files {
		if err := afero.WriteFile(env.fs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := env.run("build", "/src/superpack.toml", "/out/game.superpack"); err != nil {
		t.Fatalf("build error = %v", err)
	}
	if !strings.Contains(env.stdout.String(), "2 packs, 2 files") {
		t.Errorf("build output:\n%s", env.stdout.String())
	}
	if env.exists("/out/game.superpack.tmp") {
		t.Error("temporary output left behind")
	}

	blob, err := afero.ReadFile(env.fs, "/out/game.superpack")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := superpack.ParseFooter(blob[len(blob)-superpack.FooterSize:]); err != nil {
		t.Errorf("built superpack footer: %v", err)
	}

	if err := env.run("build", "/src/missing.toml", "/out/x"); err == nil {
		t.Error("build with a missing manifest succeeded")
	}
}

func TestConfigCommands(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)

	if err := env.run("config", "show"); err != nil {
		t.Fatalf("config show error = %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{"/etc/packfetch/config.cue", "superpack_url:", `pack_dir: "/packs"`} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}

	if err := env.run("config", "show", "--schema"); err != nil {
		t.Fatalf("config show --schema error = %v", err)
	}
	if !strings.Contains(env.stdout.String(), "#Config") {
		t.Errorf("schema output:\n%s", env.stdout.String())
	}

	if err := env.run("--pack-dir", "/elsewhere", "config", "show"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.stdout.String(), `pack_dir: "/elsewhere"`) {
		t.Errorf("--pack-dir not applied:\n%s", env.stdout.String())
	}

	if err := env.run("--config", "/cfg/config.cue", "config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !env.exists("/cfg/config.cue") {
		t.Fatal("config init did not write the file")
	}
	if err := env.run("--config", "/cfg/config.cue", "config", "init"); err == nil {
		t.Error("config init overwrote an existing file without --force")
	}
	if err := env.run("--config", "/cfg/config.cue", "config", "init", "--force"); err != nil {
		t.Errorf("config init --force error = %v", err)
	}
}

func TestBrokenConfigFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	app, err := NewApp(Dependencies{
		Config: staticProvider{err: errors.New("bad syntax")},
		Fs:     env.fs,
		Stdout: &env.stdout,
		Stderr: &env.stderr,
	})
	if err != nil {
		t.Fatal(err)
	}
	root := NewRootCommand(app)
	root.SetArgs([]string{"config", "show"})
	root.SetOut(&env.stdout)
	root.SetErr(&env.stderr)

	err = root.Execute()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitFailure {
		t.Fatalf("config show error = %v, want ExitError", err)
	}
	if !strings.Contains(env.stderr.String(), "Warning") {
		t.Errorf("stderr has no warning:\n%s", env.stderr.String())
	}
	if app.effectiveConfig().Breaker.Threshold != 3 {
		t.Errorf("fallback config = %+v, want defaults", app.effectiveConfig())
	}
}
