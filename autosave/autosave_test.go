package autosave

import (
	"strings"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabochen/viewerkit/debounce"
	"github.com/dabochen/viewerkit/diagnostics"
	"github.com/dabochen/viewerkit/fileops"
)

func newTestQueue(ops fileops.FileOps, sink diagnostics.Sink, cfg Config) *Queue {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 5 * time.Millisecond
	}
	tags := debounce.NewTags(nil, debounce.DefaultTagExpiry)
	return New(ops, tags, nil, sink, cfg)
}

func TestScheduleThenWriteSucceeds(t *testing.T) {
	mem := fileops.NewMemory()
	q := newTestQueue(mem, nil, Config{})

	f := q.Schedule("/doc.md", []byte("hello"))
	res := f.Wait()

	require.NoError(t, res.Err)
	assert.Equal(t, len("hello"), res.BytesWritten)

	content, err := mem.Read("/doc.md", fileops.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content.Bytes)
}

func TestRescheduleSupersedesPending(t *testing.T) {
	mem := fileops.NewMemory()
	q := newTestQueue(mem, nil, Config{Debounce: time.Hour})

	f1 := q.Schedule("/doc.md", []byte("first"))
	f2 := q.Schedule("/doc.md", []byte("second"))

	r1 := f1.Wait()
	assert.True(t, r1.Superseded)

	r2 := f2.Wait()
	require.NoError(t, r2.Err)

	content, err := mem.Read("/doc.md", fileops.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), content.Bytes)
}

func TestCancelResolvesCancelled(t *testing.T) {
	mem := fileops.NewMemory()
	q := newTestQueue(mem, nil, Config{Debounce: time.Hour})

	f := q.Schedule("/doc.md", []byte("x"))
	ok := q.Cancel("/doc.md")
	assert.True(t, ok)

	res := f.Wait()
	assert.True(t, res.Cancelled)

	assert.False(t, q.Cancel("/doc.md"), "second cancel has nothing to cancel")
}

func TestFlushAllPerformsPendingWritesImmediately(t *testing.T) {
	mem := fileops.NewMemory()
	q := newTestQueue(mem, nil, Config{Debounce: time.Hour})

	q.Schedule("/a.md", []byte("a"))
	q.Schedule("/b.md", []byte("b"))

	results := q.FlushAll()
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestWriteFailureThenRecoveryRetries(t *testing.T) {
	mem := fileops.NewMemory()
	mem.WriteErr = assertAnError
	q := newTestQueue(mem, nil, Config{MaxRetries: 3})

	f := q.Schedule("/doc.md", []byte("content"))
	res := f.Wait()

	// The injected error only fires once; a retry should succeed.
	require.NoError(t, res.Err)
}

func TestZeroMaxRetriesSurfacesFirstErrorImmediately(t *testing.T) {
	mem := fileops.NewMemory()
	mem.WriteErr = assertAnError
	q := newTestQueue(mem, nil, Config{MaxRetries: 0})

	f := q.Schedule("/doc.md", []byte("content"))
	res := f.Wait()

	// The injected error only fires once; with MaxRetries explicitly 0
	// there is no second attempt to let the write recover (§8).
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, assertAnError)
}

func TestWriteInstallsInternalWriteTagBeforeWrite(t *testing.T) {
	mem := fileops.NewMemory()
	tags := debounce.NewTags(nil, debounce.DefaultTagExpiry)
	q := New(mem, tags, nil, nil, Config{Debounce: 5 * time.Millisecond, FlagInternalWrites: true})

	f := q.Schedule("/doc.md", []byte("x"))
	f.Wait()

	assert.True(t, tags.Consume("/doc.md"), "tag must have been installed before the write completed")
}

func TestBackupWritesCopyBeforeOverwrite(t *testing.T) {
	mem := fileops.NewMemory()
	mem.Seed("/doc.md", []byte("old"), time.Now())

	q := newTestQueue(mem, nil, Config{Backup: true})
	f := q.Schedule("/doc.md", []byte("new"))
	res := f.Wait()
	require.NoError(t, res.Err)

	found := false
	for _, p := range mem.Paths() {
		if strings.HasPrefix(p, "/doc.md.backup-") {
			found = true
		}
	}
	assert.True(t, found, "expected a backup file to have been written")
}

func TestBackupCollisionFallsBackToUUIDSuffix(t *testing.T) {
	mem := fileops.NewMemory()
	mem.Seed("/doc.md", []byte("old"), time.Now())

	now := time.Now()
	clock := timeutil.NewSimulatedClock(now)
	tags := debounce.NewTags(clock, debounce.DefaultTagExpiry)
	q := New(mem, tags, clock, nil, Config{Debounce: 5 * time.Millisecond, Backup: true})

	// Pre-seed the exact backup path this clock would produce, forcing
	// the collision fallback.
	mem.Seed(BackupPath("/doc.md", now), []byte("collided"), now)

	f := q.Schedule("/doc.md", []byte("new"))
	res := f.Wait()
	require.NoError(t, res.Err)

	suffixed := false
	plain := BackupPath("/doc.md", now)
	for _, p := range mem.Paths() {
		if p != plain && strings.HasPrefix(p, plain+".") {
			suffixed = true
		}
	}
	assert.True(t, suffixed, "expected a uuid-suffixed backup on collision")
}

func TestDiagnosticsReportedOnFinalFailure(t *testing.T) {
	failing := &alwaysFail{Memory: fileops.NewMemory()}
	collector := diagnostics.NewCollector()
	q := New(failing, nil, nil, collector, Config{Debounce: 5 * time.Millisecond, MaxRetries: 1})

	f := q.Schedule("/doc.md", []byte("x"))
	res := f.Wait()
	require.Error(t, res.Err)

	stats, ok := collector.Last("/doc.md")
	require.True(t, ok)
	assert.True(t, stats.HasErrors())
}

type alwaysFail struct {
	*fileops.Memory
}

func (a *alwaysFail) Write(path string, content []byte, opts fileops.WriteOptions) (int, error) {
	return 0, assertAnError
}

var assertAnError = fileopsTestErr("simulated write failure")

type fileopsTestErr string

func (e fileopsTestErr) Error() string { return string(e) }
