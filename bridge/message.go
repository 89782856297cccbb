// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package bridge implements the ordered, single-peer request/response
// transport connecting a host process to a view process (§4.1).
//
// Where the teacher's Connection spoke the FUSE kernel wire protocol
// (fixed-size structs read from /dev/fuse, dispatched by opcode),
// Bridge speaks newline-delimited JSON over any io.ReadWriteCloser and
// dispatches by the Kind field instead of a kernel opcode. The
// correlation-by-unique-ID bookkeeping in Connection.beginOp/finishOp
// (a map from request ID to a cancel function) becomes the map from
// correlation ID to a response channel in Bridge.
package bridge

import "encoding/json"

// Kind is one of the exact, stable message kinds from §6's wire-format
// table. The bridge fails closed on a Kind with no registered handler
// instead of falling into a catch-all branch (Design Notes §9 flags
// catch-all "unknown message" switches as a re-architecture target).
type Kind string

const (
	KindFileUpdate         Kind = "file-update"
	KindSaveRequest        Kind = "save-request"
	KindSaveComplete       Kind = "save-complete"
	KindFileChangeExternal Kind = "file-change-external"
	KindReadFile           Kind = "read-file"
	KindWriteFile          Kind = "write-file"
	KindWatchFailed        Kind = "watch-failed"
	KindThemeChanged       Kind = "theme-changed"
	KindStateRestore       Kind = "state-restore"
)

// Message is the wire record from §3/§6: a kind, an optional payload,
// and an optional correlation id. A Message with a non-nil
// CorrelationID that matches one of our own outstanding Request calls
// is a response; otherwise it is an inbound request or one-way
// notification dispatched to the handler registered for its Kind.
type Message struct {
	Kind          Kind            `json:"kind"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID *uint64         `json:"correlation_id,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Payload shapes for each Kind, per §6's table. Handlers decode
// Message.Payload into these with json.Unmarshal.

type FileUpdatePayload struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
	Reason  string `json:"reason"`
}

type SaveRequestPayload struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

type SaveCompletePayload struct {
	Path         string `json:"path"`
	Content      []byte `json:"content"`
	BytesWritten int    `json:"bytes_written"`
}

// ChangeType mirrors the Path Watcher's event classification (§4.3).
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

type FileChangeExternalPayload struct {
	Path       string     `json:"path"`
	ChangeType ChangeType `json:"change_type"`
}

type ReadFilePayload struct {
	Path string `json:"path"`
}

type ReadFileResult struct {
	Content []byte `json:"content"`
}

type WriteFilePayload struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

type WriteFileResult struct {
	BytesWritten int `json:"bytes_written"`
}

type WatchFailedPayload struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// marshalPayload is a small helper shared by every caller that builds a
// Message from a typed payload struct.
func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
