package history

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var changesetsBucket = []byte("changesets")
var progressBucket = []byte("progress")

var progressKey = []byte("current")

// BboltHistory is the reference History implementation: it persists the
// changeset log in a bbolt bucket keyed by version, independent of the
// realm file's own page format. Swapping in a different History means
// implementing the interface; nothing in pkg/txn depends on bbolt directly.
type BboltHistory struct {
	db      *bbolt.DB
	pending []Changeset
	base    uint64
}

// OpenBboltHistory opens (creating if necessary) a bbolt-backed history
// store at path.
func OpenBboltHistory(path string) (*BboltHistory, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("history: open bbolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(changesetsBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(progressBucket)

		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init buckets: %w", err)
	}

	return &BboltHistory{db: db}, nil
}

func versionKey(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v) // big-endian so bbolt's key order == version order
	return buf
}

func (h *BboltHistory) InitiateTransact(baseVersion uint64, _ bool) error {
	h.base = baseVersion
	h.pending = nil

	return nil
}

// Stage appends a changeset to the in-progress transaction's pending set.
// pkg/txn does not call it.
func (h *BboltHistory) Stage(data []byte) {
	h.pending = append(h.pending, Changeset{Data: data})
}

func (h *BboltHistory) PrepareCommit() (uint64, error) {
	return h.base + 1, nil
}

func (h *BboltHistory) FinalizeCommit() error {
	version := h.base + 1

	err := h.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(changesetsBucket)

		for _, cs := range h.pending {
			cs.Version = version
			if err := b.Put(versionKey(version), cs.Data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("history: finalize commit: %w", err)
	}

	h.pending = nil

	return nil
}

func (h *BboltHistory) AbortTransact() error {
	h.pending = nil
	return nil
}

func (h *BboltHistory) GetChangesets(fromVersion, toVersion uint64) ([]Changeset, error) {
	var out []Changeset

	err := h.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(changesetsBucket)
		c := b.Cursor()

		for k, v := c.Seek(versionKey(fromVersion + 1)); k != nil; k, v = c.Next() {
			version := binary.BigEndian.Uint64(k)
			if version > toVersion {
				break
			}

			data := make([]byte, len(v))
			copy(data, v)
			out = append(out, Changeset{Version: version, Data: data})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: get changesets: %w", err)
	}

	return out, nil
}

func (h *BboltHistory) SetSyncProgress(p Progress) (VersionInfo, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], p.UploadedVersion)
	binary.LittleEndian.PutUint64(buf[8:16], p.DownloadedVersion)

	err := h.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(progressBucket).Put(progressKey, buf)
	})
	if err != nil {
		return VersionInfo{}, fmt.Errorf("history: set sync progress: %w", err)
	}

	return VersionInfo{Version: h.base + 1}, nil
}

func (h *BboltHistory) UpdateFromRef(_ uint64, version uint64) error {
	h.base = version
	return nil
}

// Close closes the underlying bbolt database.
func (h *BboltHistory) Close() error {
	return h.db.Close()
}

var _ History = (*BboltHistory)(nil)
