// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package viewerkit

import (
	"errors"

	"github.com/dabochen/viewerkit/fileops"
)

// Sentinel errors for the error kinds named in §7 that are shared by
// more than one subsystem. Components wrap these with
// fmt.Errorf("...: %w", Err...) so callers can still match with
// errors.Is after context is added, the same way the teacher wraps
// bazilfuse errno values with extra context before returning them.
//
// ErrNotFound/ErrTooLarge/ErrDecode/ErrIO/ErrValidation are defined in
// fileops, the leaf package that actually raises them, and re-exported
// here for callers that only import the top-level package; fileops
// itself must never import this package back, or the two form a
// cycle.
//
// bridge.ErrNoPeer/ErrPeerGone/ErrPeerTimeout and watcher.ErrWatchFailed
// live in their own packages since nothing outside those packages
// raises them.
var (
	ErrNotFound   = fileops.ErrNotFound
	ErrTooLarge   = fileops.ErrTooLarge
	ErrDecode     = fileops.ErrDecode
	ErrIO         = fileops.ErrIO
	ErrValidation = fileops.ErrValidation

	// ErrSuperseded names the Superseded kind (newer content replaced a
	// scheduled write before it started). autosave.Queue does not return
	// it: a superseded Future resolves with Result.Superseded set and a
	// nil Err.
	ErrSuperseded = errors.New("viewerkit: superseded")

	// ErrCancelled names the Cancelled kind. autosave.Queue does not
	// return it: a cancelled Future resolves with Result.Cancelled set
	// and a nil Err.
	ErrCancelled = errors.New("viewerkit: cancelled")
)
