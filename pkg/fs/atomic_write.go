package fs

import (
	"bytes"
	"errors"

	natomic "github.com/natefinch/atomic"
)

// AtomicWriter replaces a file's contents via temp-file-then-rename so a
// reader never observes a partially written file.
type AtomicWriter struct{}

// NewAtomicWriter returns an AtomicWriter. There is no configuration: every
// write goes through natefinch/atomic.WriteFile, which handles the
// temp-file/fsync/rename dance for the current platform.
func NewAtomicWriter() *AtomicWriter {
	return &AtomicWriter{}
}

// Write replaces the file at path with data atomically.
func (w *AtomicWriter) Write(path string, data []byte) error {
	if path == "" {
		return errors.New("fs: atomic write path is empty")
	}

	return natomic.WriteFile(path, bytes.NewReader(data))
}
