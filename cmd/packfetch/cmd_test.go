// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/invowk/packfetch/internal/config"
	"github.com/invowk/packfetch/internal/superpack"
)

const testPackDir = "/packs"

type (
	// staticProvider returns a fixed configuration.
	staticProvider struct {
		cfg *config.Config
		err error
	}

	testEnv struct {
		t      *testing.T
		fs     afero.Fs
		srv    *httptest.Server
		cfg    *config.Config
		stdout bytes.Buffer
		stderr bytes.Buffer
	}
)

func (p staticProvider) Load(context.Context, config.LoadOptions) (*config.Config, string, error) {
	if p.err != nil {
		return nil, "", p.err
	}
	cfg := *p.cfg
	return &cfg, "/etc/packfetch/config.cue", nil
}

// buildSuperpack builds common <- ui and common <- audio.
func buildSuperpack(t *testing.T) []byte {
	t.Helper()
	b := superpack.NewBuilder()
	for _, p := range [][]string{{"common"}, {"ui", "common"}, {"audio", "common"}} {
		if err := b.AddPack(p[0], p[1:]...); err != nil {
			t.Fatal(err)
		}
	}
	files := []struct {
		pack, name, data string
		codec           superpack.CompressionType
	}{
		{"common", "common/strings.txt", strings.Repeat("string table ", 200), superpack.CompressionRFC1951},
		{"ui", "ui/layout.json", strings.Repeat(`{"x":1}`, 100), superpack.CompressionLz4},
		{"ui", "ui/raw.bin", "raw", superpack.CompressionNone},
		{"audio", "audio/click.wav", strings.Repeat("\x00\x01", 100), superpack.CompressionLz4HC},
	}
	for _, f := range files {
		if _, err := b.AddFile(f.pack, f.name, []byte(f.data), f.codec); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newTestEnv serves blob through handler (or plain ranged responses when
// handler is nil) and prepares a config pointing at it.
func newTestEnv(t *testing.T, blob []byte, handler http.HandlerFunc) *testEnv {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			http.ServeContent(w, r, "game.superpack", time.Time{}, bytes.NewReader(blob))
		}
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.SuperpackURL = srv.URL + "/game.superpack"
	cfg.PackDir = testPackDir
	cfg.TickInterval = time.Millisecond
	cfg.Log.Level = "error"
	return &testEnv{t: t, fs: afero.NewMemMapFs(), srv: srv, cfg: cfg}
}

func (env *testEnv) run(args ...string) error {
	env.t.Helper()
	env.stdout.Reset()
	env.stderr.Reset()
	app, err := NewApp(Dependencies{
		Config:     staticProvider{cfg: env.cfg},
		Fs:         env.fs,
		HTTPClient: env.srv.Client(),
		Stdout:     &env.stdout,
		Stderr:     &env.stderr,
	})
	if err != nil {
		env.t.Fatalf("NewApp() error = %v", err)
	}
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&env.stdout)
	root.SetErr(&env.stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return root.ExecuteContext(ctx)
}

func (env *testEnv) exists(path string) bool {
	ok, _ := afero.Exists(env.fs, path)
	return ok
}
