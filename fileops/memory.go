// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package fileops

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"
)

// Memory is an in-memory FileOps backed by a map keyed by path -- the
// same idea as the teacher's samples/memfs backing store, adapted
// here not to serve a mounted filesystem but to give autosave/session
// tests a deterministic surface for retries, backoff, and echo
// suppression without touching disk.
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
	times map[string]time.Time

	// WriteErr, when non-nil, is returned by the next Write call
	// instead of performing it, then cleared. Tests use this to
	// simulate a transient I/O failure.
	WriteErr error
}

// NewMemory returns an empty in-memory FileOps.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
		times: make(map[string]time.Time),
	}
}

// Paths returns every path currently stored, for tests that need to
// enumerate what has been written (e.g. backup file names).
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	return paths
}

// Seed installs content at path as if it had been written at t,
// without going through Write. Tests use this to set up the
// "file already exists" starting state.
func (m *Memory) Seed(path string, content []byte, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), content...)
	m.times[path] = t
}

func (m *Memory) Read(path string, opts ReadOptions) (FileContent, error) {
	m.mu.Lock()
	b, ok := m.files[path]
	t := m.times[path]
	m.mu.Unlock()

	if !ok {
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrNotFound)
	}

	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	if len(b) > maxSize {
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrTooLarge)
	}
	if !utf8.Valid(b) {
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrDecode)
	}

	content := deriveMetadata(path, b, t)
	if opts.Validate != nil && !opts.Validate(content) {
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrValidation)
	}

	return content, nil
}

func (m *Memory) Write(path string, content []byte, opts WriteOptions) (int, error) {
	if opts.Validate != nil {
		candidate := deriveMetadata(path, content, timeNow())
		if !opts.Validate(candidate) {
			return 0, fmt.Errorf("fileops: write %s: %w", path, ErrValidation)
		}
	}

	m.mu.Lock()
	if m.WriteErr != nil {
		err := m.WriteErr
		m.WriteErr = nil
		m.mu.Unlock()
		return 0, fmt.Errorf("fileops: write %s: %w", path, err)
	}
	m.files[path] = append([]byte(nil), content...)
	m.times[path] = timeNow()
	m.mu.Unlock()

	return len(content), nil
}

func (m *Memory) Stat(path string) (FileContent, error) {
	return m.Read(path, ReadOptions{})
}

func (m *Memory) Validate(path string, predicate func(FileContent) bool) (bool, error) {
	content, err := m.Read(path, ReadOptions{})
	if err != nil {
		return false, err
	}
	return predicate(content), nil
}
