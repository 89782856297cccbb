// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package fileops implements uniform host-side file I/O with derived
// metadata and explicit size limits (§4.2). It is the only component
// on the host that is allowed to touch the filesystem directly;
// Autosave and bridge handlers route every read and write through it.
package fileops

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxSize is the default ceiling on FileOps.Read, matching
// §6's configuration table.
const DefaultMaxSize = 10 << 20 // 10 MiB

// FileContent is a UTF-8 byte sequence plus derived metadata (§3). The
// metadata fields are computed from Bytes at read/write/stat time and
// are never cached or treated as authoritative across calls.
type FileContent struct {
	Bytes []byte

	Size           int
	LineCount      int
	WordCount      int
	CharCount      int
	LastModifiedMs int64
	Extension      string
}

// Equal compares two FileContent values by their byte content, the
// only thing that matters for the dirty/echo invariants in §3;
// metadata is derived and never part of equality.
func (c FileContent) Equal(other FileContent) bool {
	return string(c.Bytes) == string(other.Bytes)
}

// deriveMetadata fills in every field of FileContent except Bytes,
// which the caller has already set.
func deriveMetadata(path string, b []byte, modTime time.Time) FileContent {
	return FileContent{
		Bytes:          b,
		Size:           len(b),
		LineCount:      countLines(b),
		WordCount:      countWords(b),
		CharCount:      utf8.RuneCount(b),
		LastModifiedMs: modTime.UnixMilli(),
		Extension:      strings.TrimPrefix(filepath.Ext(path), "."),
	}
}

func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := strings.Count(string(b), "\n")
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}

func countWords(b []byte) int {
	return len(strings.Fields(string(b)))
}

// ReadOptions controls Read's limits and optional content predicate.
type ReadOptions struct {
	// MaxSize overrides DefaultMaxSize when non-zero.
	MaxSize int
	// Validate, if non-nil, is applied to the decoded content; a false
	// result fails the read with ErrValidation.
	Validate func(FileContent) bool
}

// WriteOptions controls Write's directory-creation and validation
// behavior.
type WriteOptions struct {
	// CreateDirs creates parent directories when true; otherwise a
	// missing parent directory fails the write.
	CreateDirs bool
	// Validate, if non-nil, is applied to the content being written
	// before any bytes hit disk; a false result fails with
	// ErrValidation.
	Validate func(FileContent) bool
}

// FileOps is the uniform file I/O surface every other host-side
// component writes and reads through (§4.2). Implementations must
// never cache metadata across calls.
type FileOps interface {
	// Read returns the file's content and derived metadata. Fails with
	// ErrNotFound, ErrTooLarge, ErrDecode, or ErrValidation.
	Read(path string, opts ReadOptions) (FileContent, error)

	// Write persists content at path and returns the number of bytes
	// written. Fails with ErrValidation or ErrIO.
	Write(path string, content []byte, opts WriteOptions) (int, error)

	// Stat returns metadata without reading the full content into the
	// caller... in practice the bytes are still read internally to
	// derive counts, since §3 defines metadata purely in terms of
	// content. Fails with ErrNotFound.
	Stat(path string) (FileContent, error)

	// Validate reads path and applies predicate, returning its result.
	// It is pure: no side effects beyond the read.
	Validate(path string, predicate func(FileContent) bool) (bool, error)
}

// Sentinel errors for the §7 error kinds FileOps implementations
// raise. They live here, rather than in the root package, so that
// nothing fileops depends on ever depends back on fileops; the root
// package re-exports these under viewerkit.ErrXxx for callers that
// only import the top-level package.
var (
	ErrNotFound   = errors.New("fileops: not found")
	ErrTooLarge   = errors.New("fileops: file too large")
	ErrDecode     = errors.New("fileops: decode error")
	ErrIO         = errors.New("fileops: io error")
	ErrValidation = errors.New("fileops: validation failed")
)
