package fileops

import "time"

// timeNow is a thin indirection so Write can derive metadata for a
// not-yet-flushed validation candidate without depending on a real
// mtime (there isn't one until the write lands).
func timeNow() time.Time {
	return time.Now()
}
