// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package session implements the view-side Buffer State Machine
// (§4.6): the single authority reconciling user edits with
// host-reported file changes for one open document. Only one
// EditSession exists per (view, path) pair (§3).
package session

import (
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/dabochen/viewerkit/bridge"
)

// State is one of the five buffer states from §4.6.
type State int

const (
	Initializing State = iota
	Clean
	Dirty
	Saving
	ConflictPending
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Clean:
		return "Clean"
	case Dirty:
		return "Dirty"
	case Saving:
		return "Saving"
	case ConflictPending:
		return "ConflictPending"
	default:
		return "Unknown"
	}
}

// Choice is the UI's resolution of a presented conflict.
type Choice int

const (
	KeepLocal Choice = iota
	AcceptExternal
)

// Sender is the narrow slice of bridge.Bridge the state machine needs
// to issue a save request. *bridge.Bridge satisfies this directly;
// tests can substitute a fake.
type Sender interface {
	Send(kind bridge.Kind, payload any) error
}

// Listener receives the two UI-facing signals the state machine emits
// (§4.6, §6): BufferReplaced for cursor restoration and
// ConflictPresented to show both sides of a conflict. A nil Listener
// is replaced with a NoOpListener.
type Listener interface {
	OnBufferReplaced(buffer []byte)
	OnConflictPresented(local, external []byte)
}

// NoOpListener discards every signal.
type NoOpListener struct{}

func (NoOpListener) OnBufferReplaced(buffer []byte)                 {}
func (NoOpListener) OnConflictPresented(local, external []byte)     {}

// Config mirrors §6's Buffer State Machine configuration block.
type Config struct {
	EditingIdle      time.Duration
	AutosaveDebounce time.Duration
}

// Defaults from §6.
const (
	DefaultEditingIdle      = 1000 * time.Millisecond
	DefaultAutosaveDebounce = 400 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.EditingIdle <= 0 {
		c.EditingIdle = DefaultEditingIdle
	}
	if c.AutosaveDebounce <= 0 {
		c.AutosaveDebounce = DefaultAutosaveDebounce
	}
	return c
}

// EditSession is the view-side state for one open document (§3). All
// fields are guarded by mu; checkInvariants runs the invariants that
// must hold on every transition.
type EditSession struct {
	path   string
	sender Sender
	clock  timeutil.Clock
	cfg    Config
	listener Listener

	mu syncutil.InvariantMutex

	buffer       []byte // GUARDED_BY(mu)
	lastSaved    []byte // GUARDED_BY(mu)
	lastExternal []byte // GUARDED_BY(mu)
	state        State  // GUARDED_BY(mu)
	pendingSave  []byte // nil means Option::None. GUARDED_BY(mu)
	userEditing  bool   // GUARDED_BY(mu)
	closed       bool   // GUARDED_BY(mu)

	editingTimer  *time.Timer
	autosaveTimer *time.Timer
}

// New creates an EditSession in the Initializing state. sender is
// used to issue save-request messages; listener receives
// BufferReplaced/ConflictPresented signals. Either may be nil.
func New(path string, sender Sender, clock timeutil.Clock, listener Listener, cfg Config) *EditSession {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	if listener == nil {
		listener = NoOpListener{}
	}
	s := &EditSession{
		path:     path,
		sender:   sender,
		clock:    clock,
		listener: listener,
		cfg:      cfg.withDefaults(),
		state:    Initializing,
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// Path returns the session's fixed path.
func (s *EditSession) Path() string { return s.path }

func (s *EditSession) checkInvariants() {
	dirty := !bytesEqual(s.buffer, s.lastSaved)

	switch s.state {
	case Clean:
		if dirty {
			panic("EditSession: Clean state with dirty buffer")
		}
	case Dirty:
		if !dirty {
			panic("EditSession: Dirty state with clean buffer")
		}
	case Saving:
		if s.pendingSave == nil {
			panic("EditSession: Saving state with no pending_save")
		}
	case ConflictPending:
		if !dirty {
			panic("EditSession: ConflictPending state with clean buffer")
		}
		if bytesEqual(s.lastExternal, s.buffer) {
			panic("EditSession: ConflictPending state with last_external == buffer")
		}
	}
}

// Snapshot is an immutable view of session state for observers (the
// UI) that must not be able to mutate EditSession's internals.
type Snapshot struct {
	Buffer []byte
	State  State
}

// Current returns a snapshot of the session's observable state.
func (s *EditSession) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Buffer: cloneBytes(s.buffer), State: s.state}
}

func bytesEqual(a, b []byte) bool {
	return string(a) == string(b)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *EditSession) sendSaveRequest(content []byte) error {
	if s.sender == nil {
		return nil
	}
	// A send failure here is a PeerGone/PeerTimeout condition (§7); the
	// caller puts the session back to Dirty with pendingSave set, so the
	// next autosave attempt or explicit SaveRequested call retries it.
	return s.sender.Send(bridge.KindSaveRequest, bridge.SaveRequestPayload{
		Path:    s.path,
		Content: content,
	})
}
