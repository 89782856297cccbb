// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

//go:build !linux && !darwin

package fileops

import "os"

// lockFile is a no-op on platforms without flock(2); writes are still
// serialized per-path by the Autosave Queue (§4.5), so this only
// widens the window in which an external process could interleave.
func lockFile(f *os.File) (unlock func(), err error) {
	return func() {}, nil
}
