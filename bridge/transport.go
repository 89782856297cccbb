// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Transport is the minimal abstraction Bridge needs over a duplex byte
// stream. The teacher's analogue is MessageProvider (ReadMessage /
// WriteMessage against /dev/fuse); here the stream can be a stdio pipe
// between host and view processes, a net.Conn, or an in-memory pipe
// used by tests.
type Transport interface {
	// Send writes one message. Safe for concurrent use.
	Send(Message) error
	// Recv blocks for the next message. Only ever called from the
	// Bridge's single read loop.
	Recv() (Message, error)
	// Close closes the underlying stream, which unblocks any outstanding
	// Recv with an error (io.EOF only if the stream reports one; a
	// closed pipe or file reports its own closed error) and causes
	// subsequent Send calls to fail.
	Close() error
}

// frameTransport implements Transport as line-delimited JSON, the same
// framing dwarri-gazette's message.JSONFraming uses for its broker
// protocol messages: one json.Marshal per line, read back with
// bufio.Reader.ReadBytes('\n').
type frameTransport struct {
	writeMu sync.Mutex
	w       *bufio.Writer
	wc      io.Closer

	r *bufio.Reader
}

// NewFrameTransport wraps rw in a Transport that frames messages as
// newline-delimited JSON.
func NewFrameTransport(rw io.ReadWriteCloser) Transport {
	return &frameTransport{
		w:  bufio.NewWriter(rw),
		wc: rw,
		r:  bufio.NewReader(rw),
	}
}

func (t *frameTransport) Send(m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("bridge: marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.w.Write(b); err != nil {
		return fmt.Errorf("bridge: write message: %w", err)
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("bridge: write message: %w", err)
	}
	return t.w.Flush()
}

func (t *frameTransport) Recv() (Message, error) {
	line, err := t.r.ReadBytes('\n')
	if len(line) == 0 {
		if err != nil {
			if err == io.EOF {
				return Message{}, io.EOF
			}
			return Message{}, fmt.Errorf("bridge: read message: %w", err)
		}
		return Message{}, nil
	}

	var m Message
	if jerr := json.Unmarshal(line, &m); jerr != nil {
		return Message{}, fmt.Errorf("bridge: decode message: %w", jerr)
	}
	// A final line with no trailing newline (err == io.EOF here) is still
	// a valid message; the next Recv call will return io.EOF with no
	// data.
	return m, nil
}

func (t *frameTransport) Close() error {
	return t.wc.Close()
}
