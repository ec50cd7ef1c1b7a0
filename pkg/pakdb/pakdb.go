// Package pakdb is the top-level facade: Open a database file and obtain
// read/write transactions bound to a schema Group, the same way the
// teacher's slotcache.Client ties its cache, store, and eviction policy
// together behind a single entry point.
package pakdb

import (
	"fmt"

	"github.com/pakdb/pakdb/pkg/crypto"
	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/history"
	"github.com/pakdb/pakdb/pkg/logging"
	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/pakdb/pakdb/pkg/txn"
)

var log = logging.For("pakdb")

// Options configures Open.
type Options struct {
	// HistoryPath, if non-empty, opens a bbolt-backed changeset history at
	// this path instead of the no-op Null history.
	HistoryPath string

	// Encryption, if non-nil, transparently AES+HMAC encrypts every page of
	// the arena file (§4.7) below pkg/alloc.File's Translate/EnsureSpace
	// surface. Leave nil to mmap the file as plaintext.
	Encryption *crypto.Keys
}

// DB is an open database file: a transaction manager plus the schema
// catalog layered on top of it.
type DB struct {
	mgr     *txn.Manager
	catalog *schema.Catalog
	hist    history.History
}

// Open opens (creating if absent) the database file at path.
func Open(path string, opts Options) (*DB, error) {
	hist := history.History(history.Null{})
	if opts.HistoryPath != "" {
		h, err := history.OpenBboltHistory(opts.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("pakdb: open history: %w", err)
		}
		hist = h
	}

	var (
		mgr *txn.Manager
		err error
	)

	if opts.Encryption != nil {
		mgr, err = txn.OpenEncrypted(fs.NewReal(), path, hist, opts.Encryption)
	} else {
		mgr, err = txn.Open(fs.NewReal(), path, hist)
	}
	if err != nil {
		return nil, fmt.Errorf("pakdb: open transaction manager: %w", err)
	}

	catalog, err := schema.OpenCatalog(mgr)
	if err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("pakdb: open schema catalog: %w", err)
	}

	log.Info().Str("path", path).Bool("encrypted", opts.Encryption != nil).Msg("database opened")

	return &DB{mgr: mgr, catalog: catalog, hist: hist}, nil
}

// Group returns the schema catalog view visible to tx: the tables, columns,
// and rows committed at tx's snapshot for a Reading/Frozen transaction, or
// a private mutable view for the one in-flight Writing transaction. Two
// transactions never share the same *schema.Group, which is what gives a
// reader started before a concurrent writer's commit the guarantee that it
// never observes that writer's tables or rows.
func (db *DB) Group(tx *txn.Transaction) (*schema.Group, error) {
	return db.catalog.Snapshot(tx)
}

// BeginWrite starts a write transaction. Exactly one may be outstanding at
// a time; call Commit or Rollback (on db, not on the transaction directly)
// to release it.
func (db *DB) BeginWrite() (*txn.Transaction, error) {
	return db.mgr.StartWrite()
}

// BeginRead starts a read transaction pinned to the database's current
// committed version.
func (db *DB) BeginRead() (*txn.Transaction, error) {
	return db.mgr.StartRead(txn.VersionLatest)
}

// Commit serializes the schema/row mutations made against tx's Group into
// the arena and durably commits them as the new top ref (§4.3's crash-safe
// commit sequence). Use this instead of calling tx.Commit directly: the
// schema catalog's snapshot is what must become the new top ref, not
// whatever ref tx happened to start with.
func (db *DB) Commit(tx *txn.Transaction) error {
	return db.catalog.Commit(tx)
}

// Rollback discards tx's pending schema/row mutations and returns the
// writer role.
func (db *DB) Rollback(tx *txn.Transaction) error {
	return db.catalog.Rollback(tx)
}

// Close releases the transaction manager and its history backend.
func (db *DB) Close() error {
	if err := db.mgr.Close(); err != nil {
		return err
	}
	if closer, ok := db.hist.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
