// SPDX-License-Identifier: MPL-2.0

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

const (
	chunkSize        = 32 * 1024
	defaultUserAgent = "packfetch"
)

type (
	// HTTPDownloader runs each task in its own goroutine using HTTP range
	// requests. It is safe for concurrent use.
	HTTPDownloader struct {
		fs        afero.Fs
		client    *http.Client
		limiter   *rate.Limiter
		userAgent string
		logger    *log.Logger

		mu    sync.Mutex
		tasks map[TaskID]*task
	}

	// Option configures an HTTPDownloader.
	Option func(*HTTPDownloader)

	task struct {
		id     TaskID
		url    string
		dest   string
		rng    Range
		cancel context.CancelFunc
		done   chan struct{}

		mu     sync.Mutex
		status TaskStatus
	}

	// fileError marks failures of the local destination.
	fileError struct {
		err error
	}

	// statusError is an HTTP response the task cannot use.
	statusError struct {
		kind ErrorKind
		msg  string
	}
)

func (e *fileError) Error() string { return e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

func (e *statusError) Error() string { return e.msg }

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *HTTPDownloader) {
		d.client = c
	}
}

// WithRateLimit caps the combined bandwidth of all tasks in bytes per second.
// Zero or negative means unlimited.
func WithRateLimit(bytesPerSecond int) Option {
	return func(d *HTTPDownloader) {
		if bytesPerSecond <= 0 {
			d.limiter = nil
			return
		}
		d.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), max(bytesPerSecond, chunkSize))
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *HTTPDownloader) {
		d.userAgent = ua
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(d *HTTPDownloader) {
		d.logger = l
	}
}

// NewHTTP returns a downloader writing destinations through fsys.
func NewHTTP(fsys afero.Fs, opts ...Option) *HTTPDownloader {
	d := &HTTPDownloader{
		fs:        fsys,
		client:    http.DefaultClient,
		userAgent: defaultUserAgent,
		logger:    log.New(io.Discard),
		tasks:     make(map[TaskID]*task),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ResumeTask implements Downloader.
func (d *HTTPDownloader) ResumeTask(url, dest string, r Range) (TaskID, error) {
	if url == "" || dest == "" {
		return "", errors.New("download task needs a url and a destination")
	}
	if r.Suffix && r.Size == 0 {
		return "", errors.New("suffix range must have a size")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:     TaskID(uuid.NewString()),
		url:    url,
		dest:   dest,
		rng:    r,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	d.tasks[t.id] = t
	d.mu.Unlock()

	d.logger.Debug("Download task started", "task", t.id, "dest", dest, "offset", r.Offset, "size", r.Size, "suffix", r.Suffix)
	go d.run(ctx, t)
	return t.id, nil
}

// TaskStatus implements Downloader.
func (d *HTTPDownloader) TaskStatus(id TaskID) (TaskStatus, bool) {
	d.mu.Lock()
	t, ok := d.tasks[id]
	d.mu.Unlock()
	if !ok {
		return TaskStatus{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, true
}

// RemoveTask implements Downloader.
func (d *HTTPDownloader) RemoveTask(id TaskID) {
	d.mu.Lock()
	t, ok := d.tasks[id]
	delete(d.tasks, id)
	d.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

// Len returns the number of tasks not yet removed.
func (d *HTTPDownloader) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Close cancels and removes every task.
func (d *HTTPDownloader) Close() error {
	d.mu.Lock()
	ids := make([]TaskID, 0, len(d.tasks))
	for id := range d.tasks {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	for _, id := range ids {
		d.RemoveTask(id)
	}
	return nil
}

func (d *HTTPDownloader) run(ctx context.Context, t *task) {
	defer close(t.done)

	err := d.transfer(ctx, t)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = TaskFinished
	if err != nil {
		t.status.Error = classify(err)
		d.logger.Debug("Download task failed", "task", t.id, "kind", t.status.Error.Kind, "err", err)
	}
}

func (d *HTTPDownloader) transfer(ctx context.Context, t *task) (err error) {
	if mkErr := d.fs.MkdirAll(filepath.Dir(t.dest), 0o755); mkErr != nil {
		return &fileError{err: mkErr}
	}

	flags := os.O_CREATE | os.O_WRONLY
	var have uint64
	if t.rng.Suffix {
		flags |= os.O_TRUNC
	} else {
		fi, statErr := d.fs.Stat(t.dest)
		switch {
		case statErr == nil:
			have = uint64(fi.Size())
		case !errors.Is(statErr, fs.ErrNotExist):
			return &fileError{err: statErr}
		}
		if have > t.rng.Size {
			// leftover from a different file; start over
			flags |= os.O_TRUNC
			have = 0
		} else {
			flags |= os.O_APPEND
		}
	}

	f, openErr := d.fs.OpenFile(t.dest, flags, 0o644)
	if openErr != nil {
		return &fileError{err: openErr}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &fileError{err: closeErr}
		}
	}()

	t.update(func(s *TaskStatus) {
		s.State = TaskDownloading
		s.SizeDownloaded = have
	})

	want := t.rng.Size - have
	if !t.rng.Suffix && want == 0 {
		return nil
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, t.url, http.NoBody)
	if reqErr != nil {
		return reqErr
	}
	req.Header.Set("User-Agent", d.userAgent)
	start := t.rng.Offset + have
	if t.rng.Suffix {
		req.Header.Set("Range", fmt.Sprintf("bytes=-%d", t.rng.Size))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, t.rng.Offset+t.rng.Size-1))
	}

	resp, doErr := d.client.Do(req)
	if doErr != nil {
		return doErr
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			t.update(func(s *TaskStatus) { s.TotalSize = total })
		}
	case resp.StatusCode == http.StatusOK && !t.rng.Suffix && start == 0:
		// server ignored the range but the body starts where we need it
	case resp.StatusCode == http.StatusOK:
		return &statusError{kind: ErrorNoRangeSupport, msg: "server ignored the range request"}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &statusError{kind: ErrorContentNotFound, msg: resp.Status}
	default:
		return &statusError{kind: ErrorCommon, msg: resp.Status}
	}

	if t.rng.Suffix {
		want = t.rng.Size
	}
	got, copyErr := d.pump(ctx, t, f, io.LimitReader(resp.Body, int64(want)))
	if copyErr != nil {
		return copyErr
	}
	if got < want {
		return fmt.Errorf("short body: got %d of %d bytes: %w", got, want, io.ErrUnexpectedEOF)
	}
	return nil
}

func (d *HTTPDownloader) pump(ctx context.Context, t *task, w io.Writer, r io.Reader) (uint64, error) {
	buf := make([]byte, chunkSize)
	var total uint64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if d.limiter != nil {
				if err := d.limiter.WaitN(ctx, n); err != nil {
					return total, err
				}
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return total, &fileError{err: err}
			}
			total += uint64(n)
			t.update(func(s *TaskStatus) { s.SizeDownloaded += uint64(n) })
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

func (t *task) update(fn func(*TaskStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
}

// parseContentRangeTotal reads the complete length from "bytes a-b/total".
func parseContentRangeTotal(h string) (uint64, bool) {
	_, total, ok := strings.Cut(h, "/")
	if !ok || total == "*" {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(total), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func classify(err error) TaskError {
	msg := err.Error()

	var fe *fileError
	if errors.As(err, &fe) {
		return TaskError{Kind: ErrorFileIO, Errno: Errno(fe.err), Message: msg}
	}
	var se *statusError
	if errors.As(err, &se) {
		return TaskError{Kind: se.kind, Message: msg}
	}
	if errors.Is(err, context.Canceled) {
		return TaskError{Kind: ErrorCancelled, Message: msg}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TaskError{Kind: ErrorCantResolveHost, Message: msg}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return TaskError{Kind: ErrorCantConnect, Message: msg}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return TaskError{Kind: ErrorCommon, Message: msg}
	}
	return TaskError{Kind: ErrorUnknown, Message: msg}
}
