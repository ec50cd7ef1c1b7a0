// Package fs provides the filesystem primitives the storage engine is built
// on: a thin FS/File abstraction (so tests can swap in a fault-injecting
// implementation), an atomic sidecar writer, and advisory cross-process
// locking via flock.
package fs

import (
	"io"
	"os"
)

// File is the subset of *os.File the engine depends on, plus Fd so callers
// can hand the descriptor to golang.org/x/sys/unix for mmap and flock.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	Fd() uintptr
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
}

// FS abstracts the handful of os-package calls pakdb needs so tests can
// substitute a fault-injecting filesystem without touching production code.
type FS interface {
	Open(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)
	Stat(path string) (os.FileInfo, error)
	Exists(path string) (bool, error)
	Remove(path string) error
	Rename(oldpath, newpath string) error
	MkdirAll(path string, perm os.FileMode) error
}

// Real implements FS against the real operating system. Every method is a
// passthrough to the os package; Exists is the only one that isn't a direct
// wrapper.
type Real struct{}

// NewReal returns a production FS backed by the os package.
func NewReal() *Real { return &Real{} }

func (r *Real) Open(path string) (File, error) { return os.Open(path) }

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func (r *Real) Remove(path string) error { return os.Remove(path) }

func (r *Real) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (r *Real) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

var _ FS = (*Real)(nil)
var _ File = (*os.File)(nil)
