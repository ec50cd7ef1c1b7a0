// Package history defines the External Interface (§4.9) through which a
// replication/sync collaborator records changesets alongside the engine's
// own commits. Wire synchronization semantics are out of scope (Non-goal);
// this package only specifies and provides a reference implementation of
// the hook surface the core calls into at each commit.
package history

import "errors"

// ErrIncompatibleHistory is returned when the on-disk history type does not
// match the type requested at open.
var ErrIncompatibleHistory = errors.New("history: incompatible history type")

// Changeset is an opaque, engine-agnostic record of what a single
// transaction changed. The core never interprets its contents.
type Changeset struct {
	Version uint64
	Data    []byte
}

// Progress is the sync-side bookmark recorded via SetSyncProgress.
type Progress struct {
	UploadedVersion   uint64
	DownloadedVersion uint64
}

// VersionInfo is returned by SetSyncProgress, echoing back the version the
// write that recorded the progress was committed at.
type VersionInfo struct {
	Version uint64
}

// History is implemented by replication/backup collaborators. The core
// commits the history ref and the data top ref atomically in one top-array
// swap (§4.9); History itself does not touch the realm file's allocator.
//
// Order guarantee: for versions v1 < v2, replaying GetChangesets(v1, v2)
// against the v1 snapshot must produce v2.
type History interface {
	// InitiateTransact is called when a write transaction begins, telling
	// the history implementation the base version it is building on and
	// whether the on-disk history ref changed underneath it since last use.
	InitiateTransact(baseVersion uint64, historyWasUpdated bool) error

	// PrepareCommit is called after the write transaction's data changes
	// are staged but before the top-ref swap; it returns the new version
	// number the commit will publish.
	PrepareCommit() (newVersion uint64, err error)

	// FinalizeCommit is called after the top-ref swap is durable.
	FinalizeCommit() error

	// AbortTransact discards any history state staged since InitiateTransact.
	AbortTransact() error

	// GetChangesets returns changesets for (from, to] in version order.
	GetChangesets(fromVersion, toVersion uint64) ([]Changeset, error)

	// SetSyncProgress records a sync bookmark and returns the version it
	// was committed at.
	SetSyncProgress(p Progress) (VersionInfo, error)

	// UpdateFromRef re-synchronizes the in-memory history state from the
	// on-disk ref at the given version, used after StartRead rebinds to a
	// snapshot written by another process.
	UpdateFromRef(historyRef uint64, version uint64) error
}

// Null is a History that records nothing; used when no replication
// collaborator is configured. PrepareCommit returns 0, which pkg/txn's
// Commit takes as "publish the current version plus one".
type Null struct{}

func (Null) InitiateTransact(uint64, bool) error { return nil }

func (Null) PrepareCommit() (uint64, error) { return 0, nil }

func (Null) FinalizeCommit() error { return nil }

func (Null) AbortTransact() error { return nil }

func (Null) GetChangesets(uint64, uint64) ([]Changeset, error) { return nil, nil }

func (Null) SetSyncProgress(p Progress) (VersionInfo, error) { return VersionInfo{}, nil }

func (Null) UpdateFromRef(uint64, uint64) error { return nil }

var _ History = Null{}
