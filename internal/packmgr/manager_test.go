// SPDX-License-Identifier: MPL-2.0

package packmgr

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invowk/packfetch/internal/catalog"
	"github.com/invowk/packfetch/internal/download"
	"github.com/invowk/packfetch/internal/mount"
	"github.com/invowk/packfetch/internal/superpack"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(afero.NewMemMapFs(), nil)
	h := newHarness(t, nil, nil, Config{})

	_, err := New(Config{PackDir: "/p"}, dl, h.vfs)
	require.Error(t, err)
	_, err = New(Config{SuperpackURL: testURL}, dl, h.vfs)
	require.Error(t, err)
	_, err = New(Config{SuperpackURL: testURL, PackDir: "/p"}, nil, h.vfs)
	require.Error(t, err)
}

func TestInitLoadsCatalog(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})

	_, err := h.m.Pack("ui")
	require.ErrorIs(t, err, ErrInitNotReady)
	_, err = h.m.RequestPack("ui", 0)
	require.ErrorIs(t, err, ErrInitNotReady)
	_, err = h.m.Catalog()
	require.ErrorIs(t, err, ErrInitNotReady)

	h.ready()

	require.NotEmpty(t, h.dl.issued)
	assert.True(t, h.dl.issued[0].rng.Suffix, "first request must fetch the footer")
	assert.Equal(t, uint64(superpack.FooterSize), h.dl.issued[0].rng.Size)
	assert.Zero(t, h.dl.active())

	packs, err := h.m.Packs()
	require.NoError(t, err)
	names := make([]string, len(packs))
	for i, p := range packs {
		names[i] = p.Name
		assert.Equal(t, PackNotRequested, p.State)
	}
	assert.Equal(t, []string{"common", "ui", "audio", "hud"}, names)

	deps, err := h.m.DependenciesOf("hud")
	require.NoError(t, err)
	assert.Equal(t, []string{"common", "ui"}, deps)

	_, err = h.m.DependenciesOf("nope")
	require.ErrorIs(t, err, catalog.ErrUnknownPack)

	exists, err := afero.Exists(h.fs, "/packs/.superpack/superpack.meta")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRequestPackLoadsDependenciesFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.ready()

	req, err := h.m.RequestPack("ui", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"common"}, req.Dependencies())
	assert.False(t, req.IsDownloaded())

	h.tickUntil("ui downloaded", req.IsDownloaded)

	assert.Equal(t, PackMounted, h.state("common"))
	assert.Equal(t, PackMounted, h.state("ui"))
	assert.Equal(t, PackNotRequested, h.state("hud"))
	assert.Equal(t, PackNotRequested, h.state("audio"))

	commonMounted := h.rec.index("common:mounted")
	uiDownloading := h.rec.index("ui:downloading")
	require.GreaterOrEqual(t, commonMounted, 0)
	require.GreaterOrEqual(t, uiDownloading, 0)
	assert.Less(t, commonMounted, uiDownloading, "ui must not start before common is mounted")
	assert.Less(t, uiDownloading, h.rec.index("ui:mounted"))
	assert.Equal(t, 0, h.rec.index("common:queued"), "common is queued by the request")
	assert.Contains(t, h.rec.events, "start:ui")

	var lastCommon, firstUI int
	for i, it := range h.dl.issued {
		switch {
		case strings.HasPrefix(it.dest, "/packs/common/"):
			lastCommon = i
		case strings.HasPrefix(it.dest, "/packs/ui/") && firstUI == 0:
			firstUI = i
		}
	}
	assert.Less(t, lastCommon, firstUI)

	for _, f := range testFiles[:4] {
		got, err := h.vfs.ReadFile(f.name)
		require.NoError(t, err, f.name)
		assert.Equal(t, len(f.data), len(got), f.name)
		assert.Equal(t, f.data, got, f.name)
	}

	assert.Zero(t, h.dl.active(), "finished tasks must be removed")
	assert.Empty(t, h.m.Requests())
	assert.InDelta(t, 1.0, req.Progress(), 0.0001)
}

func TestIsDownloadedImpliesFilesReadyAndMounted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.ready()
	req, err := h.m.RequestPack("hud", 0)
	require.NoError(t, err)

	h.tickUntil("hud downloaded", req.IsDownloaded)

	files := req.Files()
	require.Len(t, files, 5)
	for _, f := range files {
		assert.Equal(t, FileReady, f.Status(), f.Name())
		fi, err := h.fs.Stat(f.LocalPath())
		require.NoError(t, err)
		assert.Equal(t, int64(f.Size())+superpack.LiteFooterSize, fi.Size())
	}
	for _, p := range append(req.Dependencies(), "hud") {
		assert.True(t, h.vfs.IsMounted(p), p)
	}
}

func TestZeroSizeFileNeedsNoTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.ready()
	req, err := h.m.RequestPack("common", 0)
	require.NoError(t, err)
	h.tickUntil("common downloaded", req.IsDownloaded)

	assert.Zero(t, h.dl.issuedFor("empty.bin.part"))
	raw, err := afero.ReadFile(h.fs, "/packs/common/empty.bin")
	require.NoError(t, err)
	require.Len(t, raw, superpack.LiteFooterSize)
	footer, err := superpack.ParseLiteFooter(raw)
	require.NoError(t, err)
	assert.Zero(t, footer.SizeCompressed)
}

func TestChecksumMismatchRedownloads(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.dl.faults["raw.bin.part"] = &fault{corrupt: true, times: 1}
	h.ready()

	req, err := h.m.RequestPack("ui", 0)
	require.NoError(t, err)
	h.tickUntil("ui downloaded", req.IsDownloaded)

	assert.Equal(t, 2, h.dl.issuedFor("raw.bin.part"))
	got, err := h.vfs.ReadFile("ui/raw.bin")
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", string(got))
}

func TestLocalFilesAreReused(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	blob := buildTestSuperpack(t, nil)

	first := newHarness(t, fsys, blob, Config{})
	first.ready()
	req, err := first.m.RequestPack("ui", 0)
	require.NoError(t, err)
	first.tickUntil("ui downloaded", req.IsDownloaded)

	second := newHarness(t, fsys, blob, Config{})
	second.ready()
	assert.Equal(t, PackMounted, second.state("common"), "complete packs are mounted during init")
	assert.Equal(t, PackMounted, second.state("ui"))
	assert.Equal(t, PackNotRequested, second.state("hud"))
	assert.Len(t, second.dl.issued, 2, "only footer and file table are fetched")

	again, err := second.m.RequestPack("ui", 0)
	require.NoError(t, err)
	second.tickUntil("ui downloaded again", again.IsDownloaded)
	assert.Len(t, second.dl.issued, 2, "ready files are not downloaded again")
}

func TestChangedSuperpackPurgesOutdatedFiles(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	first := newHarness(t, fsys, buildTestSuperpack(t, nil), Config{})
	first.ready()
	req, err := first.m.RequestPack("ui", 0)
	require.NoError(t, err)
	first.tickUntil("ui downloaded", req.IsDownloaded)

	updated := buildTestSuperpack(t, map[string][]byte{"ui/raw.bin": []byte("new raw bytes")})
	second := newHarness(t, fsys, updated, Config{})
	second.ready()

	exists, err := afero.Exists(fsys, "/packs/ui/raw.bin")
	require.NoError(t, err)
	assert.False(t, exists, "outdated file must be removed")
	assert.Equal(t, PackMounted, second.state("common"))
	assert.Equal(t, PackNotRequested, second.state("ui"))

	again, err := second.m.RequestPack("ui", 0)
	require.NoError(t, err)
	second.tickUntil("ui downloaded", again.IsDownloaded)
	got, err := second.vfs.ReadFile("ui/raw.bin")
	require.NoError(t, err)
	assert.Equal(t, "new raw bytes", string(got))
	assert.Equal(t, 1, second.dl.issuedFor("raw.bin.part"))
	assert.Zero(t, second.dl.issuedFor("layout.json.part"), "unchanged files are kept")
}

func TestDownloadProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.dl.pendingPolls = 4
	h.dl.faults["layout.json.part"] = &fault{corrupt: true, times: 1}
	h.ready()

	req, err := h.m.RequestPack("hud", 0)
	require.NoError(t, err)

	var reqProgress []uint64
	h.tickUntil("hud downloaded", func() bool {
		reqProgress = append(reqProgress, req.DownloadedSize())
		return req.IsDownloaded()
	})

	assert.True(t, slices.IsSorted(reqProgress), "request progress went backwards: %v", reqProgress)
	for pack, values := range h.rec.downloads {
		assert.True(t, slices.IsSorted(values), "%s progress went backwards: %v", pack, values)
		require.NotEmpty(t, values)
		total, _ := h.m.Pack(pack)
		assert.Equal(t, total.TotalSizeFromDB, values[len(values)-1], pack)
	}
	assert.Equal(t, req.TotalSize(), req.DownloadedSize())
}

func TestCancelRequestStopsTasks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.dl.pendingPolls = 1 << 20
	h.ready()

	_, err := h.m.RequestPack("ui", 0)
	require.NoError(t, err)
	h.tickUntil("task issued", func() bool { return h.dl.active() > 0 })

	require.NoError(t, h.m.CancelRequest("ui"))
	assert.Zero(t, h.dl.active(), "cancel must remove running tasks")
	assert.Equal(t, PackNotRequested, h.state("common"))
	assert.Equal(t, PackNotRequested, h.state("ui"))
	_, ok := h.m.Request("ui")
	assert.False(t, ok)

	issued := len(h.dl.issued)
	h.ticks(20)
	assert.Len(t, h.dl.issued, issued, "no task may start after cancel")

	require.ErrorIs(t, h.m.CancelRequest("ui"), ErrNoRequest)

	// A later request reaches the same end state as an uncancelled one.
	h.dl.pendingPolls = 0
	again, err := h.m.RequestPack("ui", 0)
	require.NoError(t, err)
	h.tickUntil("ui downloaded after cancel", again.IsDownloaded)
	assert.Equal(t, PackMounted, h.state("common"))
	assert.Equal(t, PackMounted, h.state("ui"))
	for _, f := range again.Files() {
		assert.Equal(t, FileReady, f.Status(), f.Name())
	}
}

func TestPreemptionKeepsPackProgress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.dl.pendingPolls = 3
	h.ready()

	_, err := h.m.RequestPack("audio", 1)
	require.NoError(t, err)
	downloaded := func() uint64 {
		p, err := h.m.Pack("common")
		require.NoError(t, err)
		return p.DownloadedSize
	}
	h.tickUntil("common partially downloaded", func() bool { return downloaded() > 0 })
	before := downloaded()

	_, err = h.m.RequestPack("ui", 5)
	require.NoError(t, err)
	h.ticks(1)
	assert.GreaterOrEqual(t, downloaded(), before, "preemption lowered common's progress")

	h.dl.pendingPolls = 0
	h.tickUntil("all downloaded", func() bool { return len(h.m.Requests()) == 0 })
	values := h.rec.downloads["common"]
	assert.True(t, slices.IsSorted(values), "common progress went backwards: %v", values)
	p, err := h.m.Pack("common")
	require.NoError(t, err)
	assert.Equal(t, p.TotalSizeFromDB, p.DownloadedSize)
}

func TestBreakerTripsOnRepeatedIOErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{BreakerThreshold: 3})
	h.ready()
	h.dl.faults["*"] = &fault{kind: download.ErrorFileIO, errno: int(syscall.ENOSPC), times: -1}

	req, err := h.m.RequestPack("ui", 0)
	require.NoError(t, err)
	h.tickUntil("breaker", func() bool { return !h.m.IsRequestingEnabled() })

	require.Len(t, h.rec.fileErrors, 1)
	assert.True(t, strings.HasSuffix(h.rec.fileErrors[0], ":28"), h.rec.fileErrors[0])
	assert.Zero(t, h.dl.active())

	fatal := h.m.FatalError()
	require.ErrorIs(t, fatal, ErrFatalIO)
	var ioErr *FatalIOError
	require.ErrorAs(t, fatal, &ioErr)
	assert.Equal(t, int(syscall.ENOSPC), ioErr.Errno)

	_, err = h.m.RequestPack("audio", 0)
	require.ErrorIs(t, err, ErrRequestingDisabled)

	issued := len(h.dl.issued)
	h.ticks(10)
	assert.Len(t, h.dl.issued, issued, "nothing runs while requesting is disabled")
	assert.Len(t, h.rec.fileErrors, 1, "the breaker reports once")

	delete(h.dl.faults, "*")
	h.m.SetRequestingEnabled(true)
	require.NoError(t, h.m.FatalError())
	h.tickUntil("ui downloaded after recovery", req.IsDownloaded)
}

func TestContentNotFoundFailsPackAndDependents(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.dl.faults["strings.txt.part"] = &fault{kind: download.ErrorContentNotFound, times: -1}
	h.ready()

	req, err := h.m.RequestPack("hud", 0)
	require.NoError(t, err)
	h.tickUntil("request failed", func() bool { return req.Err() != nil })

	var packErr *PackError
	require.ErrorAs(t, req.Err(), &packErr)
	assert.Equal(t, "hud", packErr.Pack)
	assert.Equal(t, "common", packErr.Failed)

	for _, name := range []string{"common", "ui", "hud"} {
		p, err := h.m.Pack(name)
		require.NoError(t, err)
		assert.Equal(t, PackOtherError, p.State, name)
		assert.NotEmpty(t, p.ErrorMessage, name)
	}
	assert.Equal(t, PackNotRequested, h.state("audio"))
	assert.Empty(t, h.m.Requests())
	assert.Zero(t, h.dl.active())
	assert.True(t, h.m.IsRequestingEnabled(), "a missing file is not a local I/O failure")

	delete(h.dl.faults, "strings.txt.part")
	retry, err := h.m.RequestPack("hud", 0)
	require.NoError(t, err)
	assert.Equal(t, PackQueued, h.state("common"), "a new request clears the error")
	h.tickUntil("hud downloaded", retry.IsDownloaded)
}

func TestPriorityPreemptsActiveRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.dl.pendingPolls = 1 << 20
	h.ready()

	_, err := h.m.RequestPack("audio", 1)
	require.NoError(t, err)
	h.tickUntil("audio started", func() bool { return h.dl.active() > 0 })

	ui, err := h.m.RequestPack("ui", 5)
	require.NoError(t, err)
	assert.Zero(t, h.dl.active(), "the preempted request must stop its tasks")
	assert.Equal(t, []string{"ui", "audio"}, requestNames(h.m.Requests()))
	assert.Equal(t, PackQueued, h.state("common"))

	h.ticks(5)
	for _, it := range h.dl.issued[len(h.dl.issued)-h.dl.active():] {
		assert.True(t, strings.HasPrefix(it.dest, "/packs/common/"), it.dest)
	}

	require.NoError(t, h.m.SetPriority("audio", 10))
	assert.Equal(t, []string{"audio", "ui"}, requestNames(h.m.Requests()))
	assert.Zero(t, h.dl.active())
	require.ErrorIs(t, h.m.SetPriority("hud", 1), ErrNoRequest)

	same, err := h.m.RequestPack("ui", 20)
	require.NoError(t, err)
	assert.Same(t, ui, same, "requesting a queued pack returns the existing request")
	assert.Equal(t, []string{"ui", "audio"}, requestNames(h.m.Requests()))
	assert.InDelta(t, 20, same.Priority(), 0)

	h.dl.pendingPolls = 0
	h.tickUntil("all downloaded", func() bool { return len(h.m.Requests()) == 0 })
	assert.Equal(t, PackMounted, h.state("audio"))
	assert.Equal(t, PackMounted, h.state("ui"))
}

func TestRetryInitResumesFailedStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.dl.faults["footer"] = &fault{kind: download.ErrorCantConnect, times: 1}

	require.ErrorIs(t, h.m.RetryInit(), ErrInitNotFailed)
	h.tickUntil("init error", func() bool { return h.m.InitState() == InitError })

	var stepErr *InitStepError
	require.ErrorAs(t, h.m.InitError(), &stepErr)
	assert.Equal(t, InitFetchingFooter, stepErr.Step)

	h.ticks(5)
	assert.Equal(t, InitError, h.m.InitState(), "init stays failed until retried")

	require.NoError(t, h.m.RetryInit())
	assert.Equal(t, InitFetchingFooter, h.m.InitState())
	h.ready()
	require.NoError(t, h.m.InitError())
}

func TestInitPausesWhileRequestingDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.m.SetRequestingEnabled(false)
	h.ticks(5)
	assert.Equal(t, InitPaused, h.m.InitState())
	assert.Empty(t, h.dl.issued)

	h.m.SetRequestingEnabled(true)
	h.ready()
}

func TestPreloadPacksAreQueued(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{PreloadPacks: []string{"audio", "missing"}})
	h.ready()

	assert.Equal(t, []string{"audio"}, requestNames(h.m.Requests()))
	h.tickUntil("preload done", func() bool { return len(h.m.Requests()) == 0 })
	assert.Equal(t, PackMounted, h.state("audio"))
}

func TestInjectedCatalogSkipsRemoteInit(t *testing.T) {
	t.Parallel()

	blob := buildTestSuperpack(t, nil)
	footer, err := superpack.ParseFooter(blob[len(blob)-superpack.FooterSize:])
	require.NoError(t, err)
	off, err := footer.IndexOffset(uint64(len(blob)))
	require.NoError(t, err)
	ix, err := superpack.ParseIndex(footer, blob[off:len(blob)-superpack.FooterSize])
	require.NoError(t, err)
	cat, err := catalog.New(ix)
	require.NoError(t, err)

	h := newHarness(t, nil, blob, Config{}, WithCatalog(cat))
	h.ready()
	assert.Empty(t, h.dl.issued)

	req, err := h.m.RequestPack("audio", 0)
	require.NoError(t, err)
	h.tickUntil("audio downloaded", req.IsDownloaded)
}

func TestCyclicSuperpackFailsInit(t *testing.T) {
	t.Parallel()

	meta := binary.LittleEndian.AppendUint32(nil, 2)
	for _, p := range []struct {
		name string
		dep  uint32
	}{{"a", 1}, {"b", 0}} {
		meta = binary.LittleEndian.AppendUint16(meta, uint16(len(p.name)))
		meta = append(meta, p.name...)
		meta = binary.LittleEndian.AppendUint32(meta, 1)
		meta = binary.LittleEndian.AppendUint32(meta, p.dep)
	}
	footer := superpack.Footer{MetaSize: uint32(len(meta)), MetaCRC32: crc32.ChecksumIEEE(meta), TableCRC32: crc32.ChecksumIEEE(nil)}
	blob := append(meta, footer.Bytes()...)

	h := newHarness(t, nil, blob, Config{})
	h.tickUntil("init error", func() bool { return h.m.InitState() == InitError })
	require.ErrorIs(t, h.m.InitError(), catalog.ErrCyclicDependency)
}

func TestUpdatePanicsWhenReentered(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.ready()
	h.m.observer = append(h.m.observer, ObserverFuncs{
		OnRequestStartLoading: func(Pack) { h.m.Update() },
	})
	_, err := h.m.RequestPack("common", 0)
	require.NoError(t, err)

	assert.Panics(t, func() { h.m.Update() })
}

// failingMounter rejects the first mounts with a footer mismatch.
type failingMounter struct {
	*mount.VFS
	failures int
	path     string
}

func (f *failingMounter) Mount(pack string, files []mount.Source) error {
	if f.failures > 0 {
		f.failures--
		return &mount.FooterMismatchError{Path: f.path}
	}
	return f.VFS.Mount(pack, files)
}

func TestMountFailureMarksErrorLoading(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, buildTestSuperpack(t, nil), Config{})
	h.m.mounter = &failingMounter{VFS: h.vfs, failures: 1, path: "/packs/common/strings.txt"}
	h.ready()

	req, err := h.m.RequestPack("common", 0)
	require.NoError(t, err)
	h.tickUntil("request failed", func() bool { return req.Err() != nil })

	require.ErrorIs(t, req.Err(), mount.ErrFooterMismatch)
	assert.Equal(t, PackErrorLoading, h.state("common"))
	exists, _ := afero.Exists(h.fs, "/packs/common/strings.txt")
	assert.False(t, exists, "rejected file is removed so it downloads again")
	assert.Equal(t, 1, h.dl.issuedFor("strings.txt.part"))

	retry, err := h.m.RequestPack("common", 0)
	require.NoError(t, err)
	h.tickUntil("common downloaded", retry.IsDownloaded)
	assert.Equal(t, 2, h.dl.issuedFor("strings.txt.part"))
}

func TestStateStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "checking_hash", PackCheckingHash.String())
	assert.Equal(t, "loading_pack_file", FileLoadingPackFile.String())
	assert.Equal(t, "mounting_common_packs", InitMountingCommonPacks.String())
	require.ErrorIs(t, PackState(42).Validate(), ErrInvalidState)
	require.ErrorIs(t, FileStatus(-1).Validate(), ErrInvalidState)
	require.ErrorIs(t, InitState(9).Validate(), ErrInvalidState)
	assert.True(t, FileReady.IsTerminal())
	assert.False(t, FileCheckHash.IsTerminal())
	assert.True(t, errors.Is(&InvalidStateError{}, ErrInvalidState))
}

func requestNames(reqs []*PackRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Name()
	}
	return out
}

func TestLoadCachedCatalog(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	_, err := LoadCachedCatalog(fsys, "/packs")
	require.ErrorIs(t, err, fs.ErrNotExist)

	h := newHarness(t, fsys, buildTestSuperpack(t, nil), Config{})
	h.ready()

	cat, err := LoadCachedCatalog(fsys, "/packs")
	require.NoError(t, err)
	assert.Equal(t, []string{"common", "ui", "audio", "hud"}, cat.Packs())
	assert.Len(t, cat.Files(), len(testFiles))

	require.NoError(t, afero.WriteFile(fsys, "/packs/.superpack/superpack.meta", []byte("short"), 0o644))
	_, err = LoadCachedCatalog(fsys, "/packs")
	require.ErrorIs(t, err, superpack.ErrFooterCorrupt)
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/packs", "ui", "layout.json"), LocalPath("/packs", "ui/layout.json"))
}
