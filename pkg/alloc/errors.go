package alloc

import "errors"

// ErrInvalidDatabase is returned when the file header's magic or version
// cannot be recognized, or the top ref is unrecoverable.
var ErrInvalidDatabase = errors.New("alloc: invalid database file")

// ErrOutOfSpace is returned internally when an allocation does not fit the
// current arena; callers never observe it, the allocator grows and retries.
var ErrOutOfSpace = errors.New("alloc: out of space")

// ErrRefNotAligned is returned by Translate for a ref that is not 8-byte
// aligned, which can only happen against a corrupt file.
var ErrRefNotAligned = errors.New("alloc: ref is not 8-byte aligned")

// ErrRefOutOfRange is returned by Translate for a ref past the current file
// size.
var ErrRefOutOfRange = errors.New("alloc: ref out of range")

// ErrClosed is returned by any operation against a closed File.
var ErrClosed = errors.New("alloc: file is closed")
