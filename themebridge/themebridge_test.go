package themebridge

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabochen/viewerkit/bridge"
)

func wirePair(t *testing.T) (host, view *bridge.Bridge) {
	t.Helper()
	c1, c2 := net.Pipe()
	host = bridge.New(nil)
	view = bridge.New(nil)
	host.Attach(bridge.NewFrameTransport(c1))
	view.Attach(bridge.NewFrameTransport(c2))
	t.Cleanup(func() {
		host.Close()
		view.Close()
	})
	return host, view
}

func TestPushThemeForwardsOpaquePayload(t *testing.T) {
	host, view := wirePair(t)

	received := make(chan json.RawMessage, 1)
	New(view, func(payload json.RawMessage) { received <- payload }, nil)
	hostTB := New(host, nil, nil)

	require.NoError(t, hostTB.PushTheme(map[string]string{"mode": "dark"}))

	select {
	case payload := <-received:
		var got map[string]string
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, "dark", got["mode"])
	case <-time.After(time.Second):
		t.Fatal("theme payload never arrived")
	}
}

func TestPushStateForwardsOpaquePayload(t *testing.T) {
	host, view := wirePair(t)

	received := make(chan json.RawMessage, 1)
	New(view, nil, func(payload json.RawMessage) { received <- payload })
	hostTB := New(host, nil, nil)

	require.NoError(t, hostTB.PushState([]int{1, 2, 3}))

	select {
	case payload := <-received:
		var got []int
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, []int{1, 2, 3}, got)
	case <-time.After(time.Second):
		t.Fatal("state payload never arrived")
	}
}
