// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package debounce coalesces raw filesystem events and suppresses
// echoes of the engine's own writes (§4.4). It sits downstream of
// watcher and upstream of whatever consumes a normalized event
// stream.
package debounce

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/dabochen/viewerkit/watcher"
)

// DefaultWindow is the debounce window default from §6.
const DefaultWindow = 100 * time.Millisecond

// DefaultTagExpiry is how long an InternalWriteTag survives if no
// matching filesystem event arrives (§3).
const DefaultTagExpiry = 5 * time.Second

// key is the (type, path) coalescing key from §4.4: a Modify burst
// collapses to one event, but a Delete following a Modify is still
// reported separately.
type key struct {
	Type watcher.ChangeType
	Path string
}

// Tags is the InternalWriteTag registry (§3): a single-writer
// (Autosave Queue), single-reader (Debouncer) set of paths currently
// expected to produce a self-inflicted filesystem event.
type Tags struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	expiry time.Duration
	tags   map[string]time.Time
}

// NewTags creates an empty tag registry. clock is threaded through so
// tests can control expiry deterministically; nil uses the real
// clock.
func NewTags(clock timeutil.Clock, expiry time.Duration) *Tags {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	if expiry <= 0 {
		expiry = DefaultTagExpiry
	}
	return &Tags{clock: clock, expiry: expiry, tags: make(map[string]time.Time)}
}

// Install records that a write to path is about to happen and should
// be suppressed when its filesystem event arrives. Only the Autosave
// Queue calls this.
func (t *Tags) Install(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags[path] = t.clock.Now().Add(t.expiry)
}

// Consume reports whether path has a live tag, removing it either
// way: a live tag is consumed (one-shot suppression); an expired or
// absent tag is simply cleaned up. Only the Event Debouncer calls
// this.
func (t *Tags) Consume(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiresAt, ok := t.tags[path]
	if !ok {
		return false
	}
	delete(t.tags, path)

	return t.clock.Now().Before(expiresAt)
}

// Debouncer coalesces raw watcher.Events by (type, path) and drops
// events suppressed by a live InternalWriteTag.
type Debouncer struct {
	window time.Duration
	tags   *Tags
	clock  timeutil.Clock

	mu      sync.Mutex
	timers  map[key]*timerEntry
	out     chan watcher.Event
	closed  bool
}

type timerEntry struct {
	timer *time.Timer
	event watcher.Event
}

// New creates a Debouncer with the given window, tag registry, and
// clock. A zero window disables coalescing: every accepted event is
// emitted immediately (§8's debounce-window-zero edge case).
func New(window time.Duration, tags *Tags, clock timeutil.Clock) *Debouncer {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	return &Debouncer{
		window: window,
		tags:   tags,
		clock:  clock,
		timers: make(map[key]*timerEntry),
		out:    make(chan watcher.Event, 64),
	}
}

// Events returns the normalized, coalesced event stream.
func (d *Debouncer) Events() <-chan watcher.Event {
	return d.out
}

// Submit feeds one raw event through the debouncer. It is safe to
// call from any goroutine, but the watcher's own read loop is the
// only expected caller.
func (d *Debouncer) Submit(ev watcher.Event) {
	if d.tags != nil && d.tags.Consume(ev.Path) {
		return
	}

	if d.window <= 0 {
		d.emit(ev)
		return
	}

	k := key{Type: ev.Type, Path: ev.Path}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if existing, ok := d.timers[k]; ok {
		existing.event = ev
		existing.timer.Reset(d.window)
		return
	}

	entry := &timerEntry{event: ev}
	entry.timer = time.AfterFunc(d.window, func() { d.fire(k) })
	d.timers[k] = entry
}

func (d *Debouncer) fire(k key) {
	d.mu.Lock()
	entry, ok := d.timers[k]
	if ok {
		delete(d.timers, k)
	}
	closed := d.closed
	d.mu.Unlock()

	if !ok || closed {
		return
	}
	d.emit(entry.event)
}

func (d *Debouncer) emit(ev watcher.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	// The closed check and the send happen under the same lock Close
	// takes before closing d.out, so Close can never close the channel
	// out from under a send already past the check. Blocks if the
	// consumer is behind rather than dropping, since §5 requires raw
	// events to be processed in arrival order; Close is consequently
	// held up until any in-flight emit completes.
	d.out <- ev
}

// Close stops all pending timers and closes the output channel. No
// further events are emitted after Close returns.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, entry := range d.timers {
		entry.timer.Stop()
	}
	d.timers = make(map[key]*timerEntry)
	d.mu.Unlock()

	close(d.out)
}
