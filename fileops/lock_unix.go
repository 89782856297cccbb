// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

//go:build linux || darwin

package fileops

import (
	"os"
	"syscall"
)

// lockFile takes an advisory exclusive lock on f for the duration of
// a write, the capability the teacher exposed for FUSE's LOCK/SETLK
// opcodes (flock_linux.go, flock_darwin.go) repurposed here to keep a
// concurrent external writer from interleaving with ours (§12).
func lockFile(f *os.File) (unlock func(), err error) {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return nil, err
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
