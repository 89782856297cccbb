// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package session

import "time"

// UserEdit applies a user-originated content change (§4.6). It sets
// user_editing and, when the session is Dirty or Clean, updates the
// buffer and (re)schedules an autosave.
func (s *EditSession) UserEdit(content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.markEditing()

	switch s.state {
	case Initializing:
		// No defined transition for an edit before the first HostUpdate;
		// the UI is not expected to allow this, so the edit is dropped
		// rather than risk fabricating an undefined state.
		return

	case Clean, Dirty:
		s.buffer = cloneBytes(content)
		if bytesEqual(s.buffer, s.lastSaved) {
			s.state = Clean
		} else {
			s.state = Dirty
			s.scheduleAutosaveLocked()
		}

	case Saving:
		// A save is in flight for the buffer as of submission; further
		// typing updates the visible buffer but the in-flight write is
		// not affected (§5: in-flight write always completes).
		s.buffer = cloneBytes(content)

	case ConflictPending:
		// The user keeps typing with a conflict still unresolved;
		// update the visible buffer but leave resolution to
		// ResolveConflict.
		s.buffer = cloneBytes(content)
	}
}

// HostUpdate applies a host-originated content change: the initial
// load, an accepted external change, or a save echo (§4.6).
func (s *EditSession) HostUpdate(content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	content = cloneBytes(content)

	if s.state == Initializing {
		s.buffer = content
		s.lastSaved = content
		s.lastExternal = content
		s.state = Clean
		s.listener.OnBufferReplaced(cloneBytes(content))
		return
	}

	// Echo detection: never touch buffer (§8 "no buffer clobber on
	// echo"); only last_saved/last_external move.
	if s.pendingSave != nil && bytesEqual(content, s.pendingSave) {
		s.lastSaved = content
		s.lastExternal = content
		return
	}

	if bytesEqual(content, s.lastExternal) {
		// Nothing new; avoid re-presenting a conflict we've already
		// surfaced or re-accepting an identical external state.
		return
	}

	if s.state == Clean {
		s.buffer = content
		s.lastSaved = content
		s.lastExternal = content
		s.listener.OnBufferReplaced(cloneBytes(content))
		return
	}

	// Dirty, Saving, or ConflictPending: record the new external state;
	// present it only once editing goes idle. A save in flight is left
	// to run to completion undisturbed (§5); SaveCompleted checks
	// last_external itself and presents the conflict afterward if it
	// still applies once the save settles.
	s.lastExternal = content
	if s.userEditing || s.state == Saving {
		return
	}
	if s.state != ConflictPending {
		s.state = ConflictPending
		s.listener.OnConflictPresented(cloneBytes(s.buffer), cloneBytes(content))
	}
}

// SaveRequested issues a host save of the current buffer. Only valid
// from Dirty; a call from any other state is a no-op, since autosave
// scheduling and the UI's explicit save action both only make sense
// once the buffer has diverged from last_saved.
func (s *EditSession) SaveRequested() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Dirty {
		return
	}
	s.submitSaveLocked()
}

func (s *EditSession) submitSaveLocked() {
	s.stopAutosaveTimerLocked()
	s.pendingSave = cloneBytes(s.buffer)
	s.state = Saving
	// bridge.Send is fire-and-forget and non-blocking, so issuing it
	// while still holding mu keeps the transition atomic without risking
	// a long stall under the lock.
	if err := s.sendSaveRequest(s.pendingSave); err != nil {
		s.state = Dirty
	}
}

// SaveCompleted signals that the host has persisted content. Only
// meaningful while Saving; a stray completion (e.g. arriving after
// Close) is discarded per §5's cancellation semantics.
func (s *EditSession) SaveCompleted(content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Saving {
		return
	}

	content = cloneBytes(content)
	prevSaved := s.lastSaved
	s.lastSaved = content
	s.pendingSave = nil

	// last_external may have been advanced by a HostUpdate that arrived
	// while this save was in flight (deferred in HostUpdate above,
	// rather than acted on immediately); the save's own content does
	// not overwrite it. Otherwise the saved content is now also the
	// last known disk state.
	deferredExternal := s.lastExternal != nil &&
		!bytesEqual(s.lastExternal, prevSaved) && !bytesEqual(s.lastExternal, content)
	if !deferredExternal {
		s.lastExternal = content
	}

	if bytesEqual(s.buffer, content) {
		s.state = Clean
		return
	}

	if deferredExternal && !s.userEditing && !bytesEqual(s.lastExternal, s.buffer) {
		s.state = ConflictPending
		s.listener.OnConflictPresented(cloneBytes(s.buffer), cloneBytes(s.lastExternal))
		return
	}

	s.state = Dirty
	s.scheduleAutosaveLocked()
}

// ResolveConflict applies the UI's choice for a presented conflict. A
// call while not ConflictPending is a no-op.
func (s *EditSession) ResolveConflict(choice Choice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != ConflictPending {
		return
	}

	switch choice {
	case KeepLocal:
		s.state = Dirty
		s.scheduleAutosaveLocked()
	case AcceptExternal:
		s.buffer = cloneBytes(s.lastExternal)
		s.lastSaved = cloneBytes(s.lastExternal)
		s.state = Clean
		s.listener.OnBufferReplaced(cloneBytes(s.buffer))
	}
}

// Close cancels all pending timers for this session. In-flight saves
// are not aborted; their eventual SaveCompleted is discarded by the
// s.closed guard above (§5).
func (s *EditSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopAutosaveTimerLocked()
	s.stopEditingTimerLocked()
}

// markEditing sets user_editing and (re)starts the idle-window timer
// that clears it (§4.6, default 1000 ms).
func (s *EditSession) markEditing() {
	s.userEditing = true
	s.stopEditingTimerLocked()
	s.editingTimer = time.AfterFunc(s.cfg.EditingIdle, s.onEditingIdle)
}

func (s *EditSession) stopEditingTimerLocked() {
	if s.editingTimer != nil {
		s.editingTimer.Stop()
		s.editingTimer = nil
	}
}

// onEditingIdle clears user_editing and surfaces any conflict that
// was deferred while the user was typing.
func (s *EditSession) onEditingIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.userEditing = false

	// A deferred external change is one recorded in last_external that
	// differs from last_saved; without one there is nothing to present.
	if s.state == Dirty && s.lastExternal != nil &&
		!bytesEqual(s.lastExternal, s.lastSaved) && !bytesEqual(s.lastExternal, s.buffer) {
		s.state = ConflictPending
		s.listener.OnConflictPresented(cloneBytes(s.buffer), cloneBytes(s.lastExternal))
	}
}

// scheduleAutosaveLocked (re)starts the autosave_debounce timer
// (§4.6, default 400 ms). Must be called with mu held.
func (s *EditSession) scheduleAutosaveLocked() {
	s.stopAutosaveTimerLocked()
	s.autosaveTimer = time.AfterFunc(s.cfg.AutosaveDebounce, s.onAutosaveFire)
}

func (s *EditSession) stopAutosaveTimerLocked() {
	if s.autosaveTimer != nil {
		s.autosaveTimer.Stop()
		s.autosaveTimer = nil
	}
}

// onAutosaveFire is the scheduled autosave trigger: it behaves exactly
// like an internally generated SaveRequested, skipped if the buffer
// already equals what's in flight or being saved.
func (s *EditSession) onAutosaveFire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Dirty {
		return
	}
	if s.pendingSave != nil && bytesEqual(s.buffer, s.pendingSave) {
		return
	}
	s.submitSaveLocked()
}
