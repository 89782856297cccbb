// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package viewerkit

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabochen/viewerkit/bridge"
	"github.com/dabochen/viewerkit/config"
	"github.com/dabochen/viewerkit/fileops"
	"github.com/dabochen/viewerkit/session"
)

// wireEngines builds a HostEngine/ViewEngine pair connected over an
// in-memory duplex pipe, the root-package analogue of bridge_test.go's
// wirePair. cfg's autosave/session debounces are kept short so tests
// don't need to sleep for the production defaults.
func wireEngines(t *testing.T, ops fileops.FileOps) (*HostEngine, *ViewEngine) {
	t.Helper()

	hostConn, viewConn := net.Pipe()

	cfg := config.Config{}
	config.ApplyDefaults(&cfg)
	cfg.Autosave.DebounceMs = 5
	// A short editing-idle window and a long session autosave debounce
	// keep the two timers from racing: tests that want a conflict
	// surfaced rely on the session still being Dirty (not yet Saving)
	// when its idle timer fires, and tests that want a save drive it
	// explicitly via SaveRequested rather than waiting on this timer.
	cfg.Session.EditingIdleMs = 15
	cfg.Session.AutosaveDebounceMs = 5000

	host := NewHostEngine(cfg, nil, WithFileOps(ops))
	view := NewViewEngine(cfg, nil, nil, nil)

	host.Attach(bridge.NewFrameTransport(hostConn))
	view.Attach(bridge.NewFrameTransport(viewConn))

	t.Cleanup(func() {
		_ = host.Close()
		_ = view.Close()
	})

	return host, view
}

type capturingListener struct {
	replaced  chan []byte
	conflicts chan [2][]byte
}

func newCapturingListener() *capturingListener {
	return &capturingListener{
		replaced:  make(chan []byte, 8),
		conflicts: make(chan [2][]byte, 8),
	}
}

func (l *capturingListener) OnBufferReplaced(buffer []byte) { l.replaced <- buffer }
func (l *capturingListener) OnConflictPresented(local, external []byte) {
	l.conflicts <- [2][]byte{local, external}
}

var _ session.Listener = (*capturingListener)(nil)

func TestEndToEndInitialLoadThenSave(t *testing.T) {
	mem := fileops.NewMemory()
	mem.Seed("/doc.md", []byte("hello"), time.Now())

	_, view := wireEngines(t, mem)

	listener := newCapturingListener()
	s := view.OpenSession("/doc.md", listener)

	var loaded []byte
	require.Eventually(t, func() bool {
		select {
		case loaded = <-listener.replaced:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond, "expected initial content to load")
	assert.Equal(t, []byte("hello"), loaded)

	s.UserEdit([]byte("hello world"))
	assert.Equal(t, session.Dirty, s.Current().State)
	s.SaveRequested()

	require.Eventually(t, func() bool {
		content, err := mem.Read("/doc.md", fileops.ReadOptions{})
		return err == nil && string(content.Bytes) == "hello world"
	}, time.Second, 2*time.Millisecond, "expected the edit to reach the host's store")

	require.Eventually(t, func() bool {
		return s.Current().State == session.Clean
	}, time.Second, 2*time.Millisecond, "expected the session to settle Clean after save-complete")
}

func TestEndToEndExternalChangeSurfacesAsConflictWhenDirty(t *testing.T) {
	mem := fileops.NewMemory()
	mem.Seed("/doc.md", []byte("v1"), time.Now())

	host, view := wireEngines(t, mem)

	listener := newCapturingListener()
	s := view.OpenSession("/doc.md", listener)

	require.Eventually(t, func() bool {
		select {
		case <-listener.replaced:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	// UserEdit makes the buffer Dirty and starts the editing-idle timer.
	// The session's own autosave debounce (5s, see wireEngines) is far
	// longer than that idle window, so the external change below is
	// recorded while still Dirty and the idle timer's own check
	// (onEditingIdle) is what surfaces the conflict -- not a race with
	// the session's autosave.
	s.UserEdit([]byte("v2-local"))

	mem.Seed("/doc.md", []byte("v2-external"), time.Now())
	require.NoError(t, host.bridge.Send(bridge.KindFileUpdate, bridge.FileUpdatePayload{
		Path:    "/doc.md",
		Content: []byte("v2-external"),
		Reason:  "external-change",
	}))

	var conflict [2][]byte
	require.Eventually(t, func() bool {
		select {
		case conflict = <-listener.conflicts:
			return true
		default:
			return false
		}
	}, 2*time.Second, 2*time.Millisecond, "expected a conflict once editing goes idle")

	assert.Equal(t, []byte("v2-local"), conflict[0])
	assert.Equal(t, []byte("v2-external"), conflict[1])
	assert.Equal(t, session.ConflictPending, s.Current().State)
}
