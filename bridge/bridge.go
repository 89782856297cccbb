// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jacobsa/reqtrace"

	"github.com/dabochen/viewerkit/internal/logger"
)

// Handler processes one inbound message. If the message carried a
// correlation id, the Bridge sends the returned payload (or err, if
// non-nil) back to the peer as a response; for a one-way message the
// return values are ignored beyond logging a non-nil err.
//
// This corresponds to the teacher's per-opcode conversion + dispatch in
// Connection.ReadOp/server.handleFuseRequest, collapsed to a single
// registration point per Kind instead of a type switch over FUSE ops.
type Handler func(ctx context.Context, msg Message) (payload any, err error)

// pendingRequest is what the teacher calls cancelFuncs: a map from a
// request's unique ID to the state needed to complete it. Here that's a
// channel instead of a cancel function, since our "ops" are full
// request/response pairs rather than cancellable kernel calls.
type pendingRequest struct {
	resp chan Message
}

// Bridge is a bidirectional, single-peer channel carrying typed
// Messages between a host and a view process (§4.1). It owns exactly
// one Transport at a time; attaching a new one (via Attach) first tears
// down the old peer per the Lifecycle contract.
type Bridge struct {
	log *logger.Logger
	id  string

	mu       sync.Mutex
	t        Transport
	handlers map[Kind]Handler
	pending  map[uint64]*pendingRequest
	closed   bool

	nextID uint64 // atomic

	readDone chan struct{}
}

// dispatchQueueSize bounds how far the read loop can run ahead of a slow
// or re-entrant handler before it starts applying backpressure on
// Recv. It is sized generously since the wire protocol is message, not
// byte, oriented and a stalled handler is the exception, not the norm.
const dispatchQueueSize = 256

// New creates a Bridge with no peer attached. Call Attach to begin
// serving a Transport.
func New(log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	return &Bridge{
		log:      log,
		id:       uuid.NewString(),
		handlers: make(map[Kind]Handler),
		pending:  make(map[uint64]*pendingRequest),
	}
}

// ID uniquely identifies this Bridge instance across its lifetime, the
// way a log line can be correlated to one host/view connection even
// after Attach has swapped the underlying Transport.
func (b *Bridge) ID() string { return b.id }

// On registers the handler for a message Kind. A second registration
// for the same Kind replaces the first -- the defensive pattern §4.1
// calls for, rather than erroring on re-registration.
func (b *Bridge) On(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = h
}

// Attach begins serving t as the Bridge's peer. It starts a background
// read loop and returns immediately; Wait blocks until the loop exits.
//
// This is the Bridge's analogue of Connection.Init followed by the
// server's Serve loop: one goroutine reads messages in send order and
// a second, fed in that same order, runs each through its handler --
// response correlation happens inline in the read loop itself, since
// resolving a pending Request is just a non-blocking channel send.
func (b *Bridge) Attach(t Transport) {
	b.mu.Lock()
	b.t = t
	b.closed = false
	b.readDone = make(chan struct{})
	done := b.readDone
	dispatchCh := make(chan Message, dispatchQueueSize)
	b.mu.Unlock()

	b.log.Info("bridge: peer attached", "connection_id", b.id)
	go b.dispatchLoop(dispatchCh)
	go b.readLoop(t, done, dispatchCh)
}

// Wait blocks until the current peer's read loop has exited (the
// Transport returned an error or was closed).
func (b *Bridge) Wait() {
	b.mu.Lock()
	done := b.readDone
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// readLoop reads messages in send order (§4.1, §5) and routes each:
// a response to one of our own pending requests is resolved right
// here, inline, since that's just handing it off on an already-waiting
// channel; anything else is handed off on dispatchCh for dispatchLoop to
// run through its handler, preserving the order messages arrived in.
func (b *Bridge) readLoop(t Transport, done chan struct{}, dispatchCh chan Message) {
	defer close(done)
	defer close(dispatchCh)
	for {
		msg, err := t.Recv()
		if err != nil {
			if err != io.EOF {
				b.log.Warn("bridge: transport read failed", logger.KeyError, err)
			}
			b.teardown()
			return
		}
		// Skip the rare empty line produced by a bare newline.
		if msg.Kind == "" && msg.CorrelationID == nil {
			continue
		}
		if msg.CorrelationID != nil && b.completePending(*msg.CorrelationID, msg) {
			continue
		}
		dispatchCh <- msg
	}
}

// dispatchLoop runs every message handed off by readLoop through
// dispatch, one at a time and in the order it was enqueued -- the
// single-worker-queue discipline that keeps same-sender messages
// (e.g. successive file-update notifications for one path) from being
// applied out of order the way one goroutine per message would allow.
func (b *Bridge) dispatchLoop(ch chan Message) {
	for msg := range ch {
		b.dispatch(msg)
	}
}

// dispatch routes one inbound non-response message to its registered
// handler.
func (b *Bridge) dispatch(msg Message) {
	b.mu.Lock()
	h, ok := b.handlers[msg.Kind]
	b.mu.Unlock()

	if !ok {
		// Fail closed: an unregistered kind is logged and, if it expected
		// a reply, answered with an error -- never silently dropped or
		// routed to a catch-all branch (Design Notes §9).
		b.log.Warn("bridge: no handler registered", logger.KeyKind, string(msg.Kind))
		if msg.CorrelationID != nil {
			b.reply(*msg.CorrelationID, nil, fmt.Errorf("bridge: unknown kind %q", msg.Kind))
		}
		return
	}

	b.invoke(h, msg)
}

// invoke calls the handler, recovering a panic the way
// server.handleFuseRequest's caller expects library code never to crash
// the serving loop: the panic is logged and, if the message wanted a
// reply, turned into an error response.
func (b *Bridge) invoke(h Handler, msg Message) {
	ctx := context.Background()

	var payload any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("bridge: handler panic: %v", r)
				b.log.Error("bridge: handler panic", logger.KeyKind, string(msg.Kind), logger.KeyError, r)
			}
		}()
		payload, err = h(ctx, msg)
	}()

	if err != nil && msg.CorrelationID == nil {
		b.log.Warn("bridge: handler error", logger.KeyKind, string(msg.Kind), logger.KeyError, err)
	}

	if msg.CorrelationID != nil {
		b.reply(*msg.CorrelationID, payload, err)
	}
}

func (b *Bridge) reply(correlationID uint64, payload any, err error) {
	raw, merr := marshalPayload(payload)
	if merr != nil {
		err = merr
	}

	resp := Message{CorrelationID: &correlationID, Payload: raw}
	if err != nil {
		resp.Error = err.Error()
	}

	if sendErr := b.sendRaw(resp); sendErr != nil {
		b.log.Warn("bridge: failed to send response", logger.KeyError, sendErr)
	}
}

func (b *Bridge) completePending(id uint64, msg Message) bool {
	b.mu.Lock()
	pr, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}

	pr.resp <- msg
	return true
}

// Send is a fire-and-forget write: it carries no correlation id and
// expects no reply. Fails with ErrNoPeer if no Transport is attached.
func (b *Bridge) Send(kind Kind, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("bridge: marshal payload: %w", err)
	}
	return b.sendRaw(Message{Kind: kind, Payload: raw})
}

func (b *Bridge) sendRaw(msg Message) error {
	b.mu.Lock()
	t := b.t
	closed := b.closed
	b.mu.Unlock()

	if t == nil || closed {
		return ErrNoPeer
	}
	if err := t.Send(msg); err != nil {
		return fmt.Errorf("bridge: send: %w", err)
	}
	return nil
}

// Request sends kind/payload and blocks for the matching response,
// correlating by a freshly allocated ID the same way the teacher
// correlates an op's reply with its "unique" fuse request ID. Fails
// with ErrPeerGone if the peer disconnects first, or ErrPeerTimeout if
// ctx is done before a response arrives.
func (b *Bridge) Request(ctx context.Context, kind Kind, payload any) (resp Message, err error) {
	err = reqtrace.Trace(ctx, fmt.Sprintf("bridge.Request(%s)", kind), func(ctx context.Context) error {
		raw, merr := marshalPayload(payload)
		if merr != nil {
			return fmt.Errorf("bridge: marshal payload: %w", merr)
		}

		id := atomic.AddUint64(&b.nextID, 1)
		pr := &pendingRequest{resp: make(chan Message, 1)}

		b.mu.Lock()
		if b.t == nil || b.closed {
			b.mu.Unlock()
			return ErrNoPeer
		}
		b.pending[id] = pr
		b.mu.Unlock()

		if serr := b.sendRaw(Message{Kind: kind, Payload: raw, CorrelationID: &id}); serr != nil {
			b.mu.Lock()
			delete(b.pending, id)
			b.mu.Unlock()
			return serr
		}

		select {
		case m := <-pr.resp:
			// Only teardown delivers a message without a correlation id.
			if m.CorrelationID == nil {
				return ErrPeerGone
			}
			if m.Error != "" {
				return fmt.Errorf("%s", m.Error)
			}
			resp = m
			return nil
		case <-ctx.Done():
			b.mu.Lock()
			delete(b.pending, id)
			b.mu.Unlock()
			return ErrPeerTimeout
		}
	})
	return resp, err
}

// teardown implements the Lifecycle contract: every pending request
// fails with ErrPeerGone and every handler is cleared.
func (b *Bridge) teardown() {
	b.mu.Lock()
	b.closed = true
	pending := b.pending
	b.pending = make(map[uint64]*pendingRequest)
	b.handlers = make(map[Kind]Handler)
	t := b.t
	b.t = nil
	b.mu.Unlock()

	for _, pr := range pending {
		pr.resp <- Message{Error: ErrPeerGone.Error()}
	}

	if t != nil {
		_ = t.Close()
	}
}

// Close tears down the current peer explicitly.
func (b *Bridge) Close() error {
	b.teardown()
	return nil
}

// Sentinel errors for the Bridge's own failure modes (§7).
var (
	ErrNoPeer      = errors.New("bridge: no peer attached")
	ErrPeerGone    = errors.New("bridge: peer gone")
	ErrPeerTimeout = errors.New("bridge: peer timeout")
)
