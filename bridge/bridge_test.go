package bridge

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wirePair connects two Bridges over an in-memory duplex pipe, the test
// analogue of a host/view stdio connection.
func wirePair(t *testing.T) (host, view *Bridge) {
	t.Helper()

	hostConn, viewConn := net.Pipe()

	host = New(nil)
	view = New(nil)

	host.Attach(NewFrameTransport(hostConn))
	view.Attach(NewFrameTransport(viewConn))

	t.Cleanup(func() {
		_ = host.Close()
		_ = view.Close()
	})

	return host, view
}

func TestRequestResponse(t *testing.T) {
	host, view := wirePair(t)

	view.On(KindReadFile, func(ctx context.Context, msg Message) (any, error) {
		var p ReadFilePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.Equal(t, "/tmp/foo.txt", p.Path)
		return ReadFileResult{Content: []byte("hello")}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := host.Request(ctx, KindReadFile, ReadFilePayload{Path: "/tmp/foo.txt"})
	require.NoError(t, err)

	var result ReadFileResult
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, []byte("hello"), result.Content)
}

func TestRequestHandlerError(t *testing.T) {
	host, view := wirePair(t)

	view.On(KindWriteFile, func(ctx context.Context, msg Message) (any, error) {
		return nil, assert.AnError
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := host.Request(ctx, KindWriteFile, WriteFilePayload{Path: "/tmp/foo.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), assert.AnError.Error())
}

func TestUnknownKindFailsClosed(t *testing.T) {
	host, _ := wirePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := host.Request(ctx, KindThemeChanged, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestSendOneWay(t *testing.T) {
	host, view := wirePair(t)

	received := make(chan ChangeType, 1)
	view.On(KindFileChangeExternal, func(ctx context.Context, msg Message) (any, error) {
		var p FileChangeExternalPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		received <- p.ChangeType
		return nil, nil
	})

	err := host.Send(KindFileChangeExternal, FileChangeExternalPayload{
		Path:       "/tmp/foo.txt",
		ChangeType: ChangeModify,
	})
	require.NoError(t, err)

	select {
	case ct := <-received:
		assert.Equal(t, ChangeModify, ct)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestRequestFailsWhenPeerGone(t *testing.T) {
	host, view := wirePair(t)
	require.NoError(t, view.Close())
	host.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := host.Request(ctx, KindReadFile, ReadFilePayload{Path: "/tmp/foo.txt"})
	require.Error(t, err)
}

func TestRequestTimesOutWithoutResponse(t *testing.T) {
	host, view := wirePair(t)
	view.On(KindReadFile, func(ctx context.Context, msg Message) (any, error) {
		select {} // never responds
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := host.Request(ctx, KindReadFile, ReadFilePayload{Path: "/tmp/foo.txt"})
	require.ErrorIs(t, err, ErrPeerTimeout)
}

func TestReRegisterHandlerReplaces(t *testing.T) {
	host, view := wirePair(t)

	calls := make(chan string, 2)
	view.On(KindReadFile, func(ctx context.Context, msg Message) (any, error) {
		calls <- "first"
		return ReadFileResult{}, nil
	})
	view.On(KindReadFile, func(ctx context.Context, msg Message) (any, error) {
		calls <- "second"
		return ReadFileResult{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := host.Request(ctx, KindReadFile, ReadFilePayload{Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, "second", <-calls)
}

func TestEachBridgeHasAStableUniqueID(t *testing.T) {
	host, view := wirePair(t)

	assert.NotEmpty(t, host.ID())
	assert.NotEmpty(t, view.ID())
	assert.NotEqual(t, host.ID(), view.ID())
	assert.Equal(t, host.ID(), host.ID())
}
