package debounce

import (
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabochen/viewerkit/watcher"
)

func TestCoalescesRepeatedModify(t *testing.T) {
	d := New(20*time.Millisecond, nil, nil)
	defer d.Close()

	for i := 0; i < 5; i++ {
		d.Submit(watcher.Event{Type: watcher.Modify, Path: "/a"})
		time.Sleep(2 * time.Millisecond)
	}

	ev := requireEvent(t, d)
	assert.Equal(t, "/a", ev.Path)
	assertNoMoreEvents(t, d)
}

func TestDeleteAfterModifyReportedSeparately(t *testing.T) {
	d := New(10*time.Millisecond, nil, nil)
	defer d.Close()

	d.Submit(watcher.Event{Type: watcher.Modify, Path: "/a"})
	d.Submit(watcher.Event{Type: watcher.Delete, Path: "/a"})

	seen := map[watcher.ChangeType]bool{}
	for i := 0; i < 2; i++ {
		ev := requireEvent(t, d)
		seen[ev.Type] = true
	}
	assert.True(t, seen[watcher.Modify])
	assert.True(t, seen[watcher.Delete])
}

func TestZeroWindowDisablesCoalescing(t *testing.T) {
	d := New(0, nil, nil)
	defer d.Close()

	d.Submit(watcher.Event{Type: watcher.Modify, Path: "/a"})
	d.Submit(watcher.Event{Type: watcher.Modify, Path: "/a"})

	requireEvent(t, d)
	requireEvent(t, d)
}

func TestInternalWriteTagSuppressesEvent(t *testing.T) {
	tags := NewTags(nil, DefaultTagExpiry)
	tags.Install("/a")

	d := New(10*time.Millisecond, tags, nil)
	defer d.Close()

	d.Submit(watcher.Event{Type: watcher.Modify, Path: "/a"})
	assertNoMoreEvents(t, d)
}

func TestTagConsumedOnce(t *testing.T) {
	tags := NewTags(nil, DefaultTagExpiry)
	tags.Install("/a")

	assert.True(t, tags.Consume("/a"))
	assert.False(t, tags.Consume("/a"))
}

func TestTagExpiresAfterWindow(t *testing.T) {
	clock := timeutil.NewSimulatedClock(time.Now())
	tags := NewTags(clock, 5*time.Second)
	tags.Install("/a")

	clock.AdvanceTime(6 * time.Second)
	assert.False(t, tags.Consume("/a"), "expired tag must not suppress")
}

func requireEvent(t *testing.T, d *Debouncer) watcher.Event {
	t.Helper()
	select {
	case ev := <-d.Events():
		return ev
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for event")
	}
	return watcher.Event{}
}

func assertNoMoreEvents(t *testing.T, d *Debouncer) {
	t.Helper()
	select {
	case ev, ok := <-d.Events():
		if ok {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
