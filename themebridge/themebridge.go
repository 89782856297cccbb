// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package themebridge carries the two theme/state message kinds across
// the bridge as opaque payloads (§4.8). It shares the bridge's ordering
// guarantees and nothing else: no parsing, no storage, no retry.
package themebridge

import (
	"context"
	"encoding/json"

	"github.com/dabochen/viewerkit/bridge"
)

// Listener receives a forwarded theme/state payload exactly as the host
// sent it.
type Listener func(payload json.RawMessage)

// Bridge forwards ThemeChanged/StateRestore traffic between a host and
// a view over the given bridge.Bridge. Its handlers are the receiving
// counterpart to PushTheme/PushState; either side may push, but only a
// view-side process is expected to register a Listener.
type Bridge struct {
	b *bridge.Bridge
}

// New wires theme/state handlers onto b. onTheme/onState may be nil if
// this process never receives the corresponding kind (e.g. the host,
// which only pushes).
func New(b *bridge.Bridge, onTheme, onState Listener) *Bridge {
	tb := &Bridge{b: b}
	b.On(bridge.KindThemeChanged, tb.handler(onTheme))
	b.On(bridge.KindStateRestore, tb.handler(onState))
	return tb
}

func (tb *Bridge) handler(l Listener) bridge.Handler {
	return func(_ context.Context, msg bridge.Message) (any, error) {
		if l != nil {
			l(msg.Payload)
		}
		return nil, nil
	}
}

// PushTheme sends a theme-changed notification. payload is forwarded
// verbatim; the core never inspects its shape.
func (tb *Bridge) PushTheme(payload any) error {
	return tb.b.Send(bridge.KindThemeChanged, payload)
}

// PushState sends a state-restore notification, forwarded verbatim.
func (tb *Bridge) PushState(payload any) error {
	return tb.b.Send(bridge.KindStateRestore, payload)
}
