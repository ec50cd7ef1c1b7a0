package txn

import "errors"

// ErrWrongTransactState is returned when an operation is attempted from a
// state that does not support it (e.g. Commit on a Reading transaction).
var ErrWrongTransactState = errors.New("txn: wrong transact state")

// ErrBadVersion is returned by StartRead when the requested version has
// already been reaped from the ring buffer (no transaction can pin it any
// more).
var ErrBadVersion = errors.New("txn: bad version")

// ErrBusy is returned by a non-blocking write attempt when another writer
// already holds the writer mutex, in-process or cross-process.
var ErrBusy = errors.New("txn: writer busy")

// ErrIncompatibleLockFile is returned when the lock file's format version
// does not match.
var ErrIncompatibleLockFile = errors.New("txn: incompatible lock file")

// ErrClosed is returned by any operation against a closed Manager.
var ErrClosed = errors.New("txn: manager is closed")
