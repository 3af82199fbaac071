package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aosc-dev/omacore/checksum"
	"github.com/aosc-dev/omacore/omafs"
	"github.com/aosc-dev/omacore/omalog"
)

const (
	defaultConcurrency = 4
	defaultRetryBudget = 3
	chunkSize          = 32 * 1024
)

// Engine is the parallel, resumable, checksum-verified, multi-source
// download engine (C4), generalizing the teacher's fixed two-stage
// verify/download worker pool into a full per-task state machine.
type Engine struct {
	FS          omafs.FileSystem
	HTTPClient  *http.Client
	Concurrency int
	RetryBudget int
	Logger      omalog.Logger
	Metrics     *Metrics
}

// NewEngine constructs an Engine with documented defaults (fan-out 4,
// retry budget 3 per source) applied for zero values.
func NewEngine(fs omafs.FileSystem) *Engine {
	return &Engine{
		FS:          fs,
		HTTPClient:  http.DefaultClient,
		Concurrency: defaultConcurrency,
		RetryBudget: defaultRetryBudget,
		Logger:      omalog.New(),
	}
}

func (e *Engine) concurrency() int {
	if e.Concurrency <= 0 {
		return defaultConcurrency
	}
	return e.Concurrency
}

func (e *Engine) retryBudget() int {
	if e.RetryBudget <= 0 {
		return defaultRetryBudget
	}
	return e.RetryBudget
}

// globalProgress tracks the cross-task running totals for
// NewGlobalBar/GlobalSet events.
type globalProgress struct {
	mu        sync.Mutex
	total     int64
	sizeKnown map[int]bool
	soFar     int64
}

// Run downloads every entry, emitting FetchEvents to sink (which Run
// never closes), and returns a FetchSummary once every task has reached a
// terminal state. sink may be nil to discard events.
func (e *Engine) Run(ctx context.Context, entries []DownloadEntry, sink chan<- FetchEvent) (FetchSummary, error) {
	emit := func(ev FetchEvent) {
		if sink == nil {
			return
		}
		select {
		case sink <- ev:
		case <-ctx.Done():
		}
	}

	if len(entries) == 0 {
		emit(FetchEvent{Kind: EvAllDone})
		return FetchSummary{}, nil
	}

	gp := &globalProgress{sizeKnown: make(map[int]bool)}

	results := make([]TaskRecord, len(entries))
	okFlags := make([]bool, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			if e.Metrics != nil {
				e.Metrics.TasksInFlight.Inc()
				defer e.Metrics.TasksInFlight.Dec()
			}
			rec, ok := e.runTask(gctx, i, entry, emit, gp)
			results[i] = rec
			okFlags[i] = ok
			if !ok && e.Metrics != nil {
				e.Metrics.TasksFailed.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	var summary FetchSummary
	for i, rec := range results {
		if okFlags[i] {
			summary.Success = append(summary.Success, rec)
		} else {
			summary.Failed = append(summary.Failed, rec)
		}
	}

	emit(FetchEvent{Kind: EvAllDone})
	return summary, nil
}

// runTask drives one entry through Pending -> Running -> {Done, Failed}.
func (e *Engine) runTask(ctx context.Context, index int, entry DownloadEntry, emit func(FetchEvent), gp *globalProgress) (TaskRecord, bool) {
	dest := entry.DestPath()
	tmp := dest + ".part"

	if err := e.FS.MkdirAll(dirOf(dest), 0o755); err != nil {
		return TaskRecord{Index: index, Filename: entry.Filename, Err: err}, false
	}

	sources := entry.Sources
	if len(sources) == 0 {
		return TaskRecord{Index: index, Filename: entry.Filename, Err: fmt.Errorf("no sources for %s", entry.Filename)}, false
	}

	maxAttempts := e.retryBudget() * len(sources)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	sourceIdx := 0
	notFoundCount := 0

	for {
		if ctx.Err() != nil {
			e.FS.Remove(tmp)
			return TaskRecord{Index: index, Filename: entry.Filename, Err: ctx.Err()}, false
		}

		src := sources[sourceIdx%len(sources)]
		wrote, matched, notFound, err := e.attempt(ctx, index, entry, src, tmp, emit, gp)

		switch {
		case notFound:
			emit(FetchEvent{Kind: EvNotFound, Index: index, Filename: entry.Filename})
			notFoundCount++
			sourceIdx++
			if notFoundCount >= len(sources) {
				e.FS.Remove(tmp)
				return TaskRecord{Index: index, Filename: entry.Filename, Err: fmt.Errorf("not found on any source")}, false
			}
			continue

		case err != nil:
			attempts++
			if attempts >= maxAttempts {
				e.FS.Remove(tmp)
				return TaskRecord{Index: index, Filename: entry.Filename, Err: err}, false
			}
			sourceIdx++
			continue

		case !matched:
			attempts++
			emit(FetchEvent{Kind: EvChecksumMismatchRetry, Index: index, Filename: entry.Filename, Attempt: attempts})
			if attempts >= maxAttempts {
				e.FS.Remove(tmp)
				return TaskRecord{Index: index, Filename: entry.Filename, Err: fmt.Errorf("checksum mismatch after %d attempts", attempts)}, false
			}
			// Drop the corrupt partial so the next attempt (another source,
			// round-robin, or the same source restarted) begins from zero
			// instead of resuming a Range request onto a bad prefix.
			e.FS.Remove(tmp)
			sourceIdx++
			emit(FetchEvent{Kind: EvNextURL, Index: index})
			continue

		default:
			if err := e.FS.Rename(tmp, dest); err != nil {
				return TaskRecord{Index: index, Filename: entry.Filename, Err: err}, false
			}
			if entry.Extract != nil {
				if err := e.publishExtract(entry, dest); err != nil {
					return TaskRecord{Index: index, Filename: entry.Filename, Err: err}, false
				}
			}
			emit(FetchEvent{Kind: EvTaskDone, Index: index, Msg: entry.Message})
			if e.Metrics != nil {
				e.Metrics.BytesFetched.Add(float64(wrote))
			}
			return TaskRecord{Index: index, Filename: entry.Filename, WroteBytes: wrote}, true
		}
	}
}

// attempt performs a single source attempt: it writes bytes to tmp (full
// or resumed) and then validates the result. Returns wrote (bytes on
// disk), matched (hash/size check passed), notFound (HTTP 404), and a
// transient error for anything else.
func (e *Engine) attempt(ctx context.Context, index int, entry DownloadEntry, src DownloadSource, tmp string, emit func(FetchEvent), gp *globalProgress) (wrote int64, matched bool, notFound bool, err error) {
	switch src.Kind {
	case SourceHTTP:
		wrote, notFound, err = e.attemptHTTP(ctx, index, entry, src, tmp, emit, gp)
	case SourceLocal:
		wrote, err = e.attemptLocal(index, entry, src, tmp, emit, gp)
	default:
		err = fmt.Errorf("unknown source kind %d", src.Kind)
	}
	if err != nil || notFound {
		return wrote, false, notFound, err
	}

	matched, err = e.validate(entry, tmp, wrote)
	return wrote, matched, false, err
}

func (e *Engine) attemptHTTP(ctx context.Context, index int, entry DownloadEntry, src DownloadSource, tmp string, emit func(FetchEvent), gp *globalProgress) (int64, bool, error) {
	var existing int64
	if entry.AllowResume {
		if fi, statErr := e.FS.Stat(tmp); statErr == nil {
			existing = fi.Size()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return 0, false, err
	}
	if src.HasAuth {
		req.SetBasicAuth(src.AuthUser, src.AuthPassword)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, true, nil
	}

	resuming := resp.StatusCode == http.StatusPartialContent && existing > 0
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, false, fmt.Errorf("http status %d fetching %s", resp.StatusCode, src.URL)
	}

	var total int64 = -1
	if resp.ContentLength >= 0 {
		if resuming {
			total = existing + resp.ContentLength
		} else {
			total = resp.ContentLength
		}
	}
	e.announceSize(index, entry, total, emit, gp)

	var w io.WriteCloser
	if resuming {
		w, err = e.FS.OpenAppend(tmp)
	} else {
		w, err = e.FS.Create(tmp)
		existing = 0
	}
	if err != nil {
		return 0, false, err
	}

	written, copyErr := e.copyWithProgress(ctx, index, w, resp.Body, gp, emit)
	closeErr := w.Close()
	if copyErr != nil {
		return 0, false, copyErr
	}
	if closeErr != nil {
		return 0, false, closeErr
	}
	return existing + written, false, nil
}

func (e *Engine) attemptLocal(index int, entry DownloadEntry, src DownloadSource, tmp string, emit func(FetchEvent), gp *globalProgress) (int64, error) {
	fi, err := e.FS.Stat(src.URL)
	if err != nil {
		return 0, err
	}
	e.announceSize(index, entry, fi.Size(), emit, gp)

	if src.SymlinkOnly {
		if err := e.FS.Symlink(src.URL, tmp); err != nil {
			return 0, fmt.Errorf("symlink required but failed: %w", err)
		}
		e.bumpProgress(index, fi.Size(), gp, emit)
		return fi.Size(), nil
	}

	if err := e.FS.Link(src.URL, tmp); err == nil {
		e.bumpProgress(index, fi.Size(), gp, emit)
		return fi.Size(), nil
	}

	// Hardlink failed (e.g. cross-device); fall back to a copy.
	r, err := e.FS.Open(src.URL)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	w, err := e.FS.Create(tmp)
	if err != nil {
		return 0, err
	}
	written, copyErr := io.Copy(w, r)
	closeErr := w.Close()
	if copyErr != nil {
		return 0, copyErr
	}
	if closeErr != nil {
		return 0, closeErr
	}
	e.bumpProgress(index, written, gp, emit)
	return written, nil
}

// copyWithProgress streams src into dst, emitting TaskInc/GlobalSet events
// through emit for each chunk written.
func (e *Engine) copyWithProgress(ctx context.Context, index int, dst io.Writer, src io.Reader, gp *globalProgress, emit func(FetchEvent)) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
			e.bumpProgress(index, int64(n), gp, emit)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func (e *Engine) bumpProgress(index int, delta int64, gp *globalProgress, emit func(FetchEvent)) {
	gp.mu.Lock()
	gp.soFar += delta
	soFar := gp.soFar
	gp.mu.Unlock()

	if emit != nil {
		emit(FetchEvent{Kind: EvTaskInc, Index: index, Delta: delta})
		emit(FetchEvent{Kind: EvGlobalSet, BytesSoFar: soFar})
	}
}

func (e *Engine) announceSize(index int, entry DownloadEntry, size int64, emit func(FetchEvent), gp *globalProgress) {
	if size >= 0 {
		emit(FetchEvent{Kind: EvNewTaskBar, Index: index, Msg: entry.Message, Size: size})
	} else {
		emit(FetchEvent{Kind: EvNewTaskSpinner, Index: index, Msg: entry.Message})
	}

	gp.mu.Lock()
	first := !gp.sizeKnown[index]
	if first {
		gp.sizeKnown[index] = true
		if size > 0 {
			gp.total += size
		}
	}
	total := gp.total
	gp.mu.Unlock()

	if first && size > 0 {
		emit(FetchEvent{Kind: EvNewGlobalBar, Size: total})
	}
}

// validate checks the downloaded bytes against the declared hash (if any)
// and the declared size hint (if any), per the "successful iff hash and
// size are consistent" contract in spec.md §4.4.
func (e *Engine) validate(entry DownloadEntry, tmp string, wrote int64) (bool, error) {
	if entry.TotalHint != nil && int64(*entry.TotalHint) != wrote {
		return false, nil
	}
	if entry.Hash == nil {
		return true, nil
	}

	r, err := e.FS.Open(tmp)
	if err != nil {
		return false, err
	}
	defer r.Close()

	v := checksum.NewValidator(*entry.Hash)
	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			v.Update(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return false, rerr
		}
	}
	return v.Finish(), nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
