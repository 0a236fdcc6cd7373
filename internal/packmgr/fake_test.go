// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/packfetch/internal/download"
	"github.com/invowk/packfetch/internal/mount"
	"github.com/invowk/packfetch/internal/superpack"
)

const testURL = "https://cdn.test/game.superpack"

type (
	// fakeDownloader serves ranges of an in-memory superpack. A task
	// finishes on the poll after pendingPolls polls.
	fakeDownloader struct {
		fs           afero.Fs
		blob         []byte
		pendingPolls int
		faults       map[string]*fault

		next    int
		tasks   map[download.TaskID]*fakeTask
		issued  []issuedTask
		removed int
	}

	fakeTask struct {
		dest   string
		rng    download.Range
		polls  int
		status download.TaskStatus
	}

	issuedTask struct {
		dest string
		rng  download.Range
	}

	// fault applies to tasks whose destination base name matches, or to
	// every task when keyed by "*". times < 0 means forever.
	fault struct {
		kind    download.ErrorKind
		errno   int
		corrupt bool
		times   int
	}
)

func newFakeDownloader(fsys afero.Fs, blob []byte) *fakeDownloader {
	return &fakeDownloader{
		fs:     fsys,
		blob:   blob,
		faults: make(map[string]*fault),
		tasks:  make(map[download.TaskID]*fakeTask),
	}
}

func (d *fakeDownloader) ResumeTask(url, dest string, r download.Range) (download.TaskID, error) {
	if url == "" || dest == "" {
		return "", fmt.Errorf("bad task")
	}
	d.next++
	id := download.TaskID(fmt.Sprintf("task-%d", d.next))
	d.tasks[id] = &fakeTask{dest: dest, rng: r, status: download.TaskStatus{State: download.TaskJustAdded}}
	d.issued = append(d.issued, issuedTask{dest: dest, rng: r})
	return id, nil
}

func (d *fakeDownloader) TaskStatus(id download.TaskID) (download.TaskStatus, bool) {
	t, ok := d.tasks[id]
	if !ok {
		return download.TaskStatus{}, false
	}
	if t.status.State == download.TaskFinished {
		return t.status, true
	}
	t.polls++
	if t.polls <= d.pendingPolls {
		t.status.State = download.TaskDownloading
		t.status.SizeDownloaded = min(t.rng.Size, t.rng.Size*uint64(t.polls)/uint64(d.pendingPolls+1))
		return t.status, true
	}
	d.finish(t)
	return t.status, true
}

func (d *fakeDownloader) RemoveTask(id download.TaskID) {
	if _, ok := d.tasks[id]; ok {
		delete(d.tasks, id)
		d.removed++
	}
}

func (d *fakeDownloader) active() int { return len(d.tasks) }

func (d *fakeDownloader) faultFor(dest string) *fault {
	f, ok := d.faults[filepath.Base(dest)]
	if !ok {
		f, ok = d.faults["*"]
	}
	if !ok || f.times == 0 {
		return nil
	}
	if f.times > 0 {
		f.times--
	}
	return f
}

func (d *fakeDownloader) issuedFor(base string) int {
	n := 0
	for _, it := range d.issued {
		if filepath.Base(it.dest) == base {
			n++
		}
	}
	return n
}

func (d *fakeDownloader) finish(t *fakeTask) {
	t.status.State = download.TaskFinished
	if f := d.faultFor(t.dest); f != nil && !f.corrupt {
		t.status.Error = download.TaskError{Kind: f.kind, Errno: f.errno, Message: "injected"}
		return
	} else if f != nil {
		defer d.corrupt(t.dest)
	}

	var (
		data  []byte
		flags = os.O_CREATE | os.O_WRONLY
		have  int64
	)
	if t.rng.Suffix {
		data = d.blob[uint64(len(d.blob))-t.rng.Size:]
		flags |= os.O_TRUNC
		t.status.TotalSize = uint64(len(d.blob))
	} else {
		if fi, err := d.fs.Stat(t.dest); err == nil {
			have = fi.Size()
		}
		if uint64(have) > t.rng.Size {
			have = 0
			flags |= os.O_TRUNC
		} else {
			flags |= os.O_APPEND
		}
		data = d.blob[t.rng.Offset+uint64(have) : t.rng.Offset+t.rng.Size]
	}
	if err := d.fs.MkdirAll(filepath.Dir(t.dest), 0o755); err != nil {
		t.status.Error = download.TaskError{Kind: download.ErrorFileIO, Message: err.Error()}
		return
	}
	f, err := d.fs.OpenFile(t.dest, flags, 0o644)
	if err != nil {
		t.status.Error = download.TaskError{Kind: download.ErrorFileIO, Errno: download.Errno(err), Message: err.Error()}
		return
	}
	_, _ = f.Write(data)
	_ = f.Close()
	t.status.SizeDownloaded = uint64(have) + uint64(len(data))
}

func (d *fakeDownloader) corrupt(path string) {
	raw, err := afero.ReadFile(d.fs, path)
	if err != nil || len(raw) == 0 {
		return
	}
	raw[0] ^= 0xff
	_ = afero.WriteFile(d.fs, path, raw, 0o644)
}

// recorder captures observer events as compact strings.
type recorder struct {
	events     []string
	downloads  map[string][]uint64
	fileErrors []string
}

func newRecorder() *recorder {
	return &recorder{downloads: make(map[string][]uint64)}
}

func (r *recorder) RequestStartLoading(p Pack) { r.events = append(r.events, "start:"+p.Name) }

func (r *recorder) PackStateChanged(p Pack) {
	r.events = append(r.events, p.Name+":"+p.State.String())
}

func (r *recorder) PackDownloadChanged(p Pack) {
	r.downloads[p.Name] = append(r.downloads[p.Name], p.DownloadedSize)
}

func (r *recorder) RequestProgressChanged(*PackRequest) {}

func (r *recorder) FileErrorOccurred(path string, errno int) {
	r.fileErrors = append(r.fileErrors, fmt.Sprintf("%s:%d", path, errno))
}

func (r *recorder) index(event string) int {
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

// testFiles is the content of the sample superpack.
var testFiles = []struct {
	pack, name string
	data       []byte
	codec      superpack.CompressionType
}{
	{"common", "common/strings.txt", []byte(strings.Repeat("localized string ", 300)), superpack.CompressionRFC1951},
	{"common", "common/empty.bin", []byte{}, superpack.CompressionNone},
	{"ui", "ui/layout.json", []byte(strings.Repeat(`{"x":1,"y":2}`, 120)), superpack.CompressionLz4},
	{"ui", "ui/raw.bin", []byte("raw bytes"), superpack.CompressionNone},
	{"hud", "hud/icons.bin", []byte(strings.Repeat("icon", 64)), superpack.CompressionLz4HC},
	{"audio", "audio/click.wav", []byte(strings.Repeat("\x00\x01", 200)), superpack.CompressionRFC1951},
}

// buildTestSuperpack builds common <- ui <- hud and common <- audio, with
// optional content overrides by file name.
func buildTestSuperpack(t *testing.T, overrides map[string][]byte) []byte {
	t.Helper()
	b := superpack.NewBuilder()
	for _, p := range [][]string{{"common"}, {"ui", "common"}, {"hud", "ui"}, {"audio", "common"}} {
		if err := b.AddPack(p[0], p[1:]...); err != nil {
			t.Fatalf("AddPack(%s) error = %v", p[0], err)
		}
	}
	for _, f := range testFiles {
		data := f.data
		if o, ok := overrides[f.name]; ok {
			data = o
		}
		if _, err := b.AddFile(f.pack, f.name, data, f.codec); err != nil {
			t.Fatalf("AddFile(%s) error = %v", f.name, err)
		}
	}
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	return buf.Bytes()
}

type harness struct {
	t   *testing.T
	fs  afero.Fs
	dl  *fakeDownloader
	vfs *mount.VFS
	rec *recorder
	m   *Manager
}

func newHarness(t *testing.T, fsys afero.Fs, blob []byte, cfg Config, opts ...Option) *harness {
	t.Helper()
	if fsys == nil {
		fsys = afero.NewMemMapFs()
	}
	if cfg.SuperpackURL == "" {
		cfg.SuperpackURL = testURL
	}
	if cfg.PackDir == "" {
		cfg.PackDir = "/packs"
	}
	h := &harness{t: t, fs: fsys, dl: newFakeDownloader(fsys, blob), rec: newRecorder()}
	vfs, err := mount.NewVFS(fsys)
	if err != nil {
		t.Fatal(err)
	}
	h.vfs = vfs
	opts = append([]Option{WithFs(fsys), WithObserver(h.rec), WithLogger(log.New(io.Discard))}, opts...)
	m, err := New(cfg, h.dl, vfs, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.m = m
	return h
}

// tickUntil calls Update until cond holds or the tick budget runs out.
func (h *harness) tickUntil(what string, cond func() bool) {
	h.t.Helper()
	for range 2000 {
		if cond() {
			return
		}
		h.m.Update()
	}
	h.t.Fatalf("%s: condition not reached (init=%s)", what, h.m.InitState())
}

func (h *harness) ready() {
	h.t.Helper()
	h.tickUntil("init", func() bool { return h.m.InitState() == InitReady })
}

func (h *harness) ticks(n int) {
	for range n {
		h.m.Update()
	}
}

func (h *harness) state(name string) PackState {
	h.t.Helper()
	p, err := h.m.Pack(name)
	if err != nil {
		h.t.Fatalf("Pack(%s) error = %v", name, err)
	}
	return p.State
}
