package schema

import (
	"fmt"
	"sync"

	"github.com/pakdb/pakdb/pkg/txn"
)

// catalogCacheLimit bounds how many decoded Group snapshots Catalog keeps
// in memory at once. A transaction whose snapshot has been evicted still
// resolves correctly on its next call (decodeGroupBytes re-runs against its
// own TopRef) - this only trims repeat-decode memoization, never
// correctness, since the underlying arena bytes stay valid for as long as
// any transaction is pinned to that version (txn.Transaction.reapFreeList
// will not let the writer's Free reclaim them earlier).
const catalogCacheLimit = 32

// Catalog vends the Group visible to a given transaction's snapshot. This
// is what closes the isolation gap a shared, live, mutable Group would
// leave open: a Reading or Frozen transaction started before a writer
// commits a new table must never observe it (§3 Invariant (iii), §8
// scenario 1). Catalog enforces that by handing every caller a Group that
// was decoded from (or cloned from) exactly the bytes committed at that
// transaction's top ref, rather than a single catalog object every
// transaction shares.
type Catalog struct {
	mgr *txn.Manager

	mu    sync.Mutex
	byRef map[uint64]*Group // committed, immutable snapshots, keyed by top ref

	writing    *Group // the in-flight write transaction's private clone
	writingRef uint64 // top ref writing was cloned from (0 == none yet)
}

// OpenCatalog builds a Catalog bound to mgr, reloading whatever Group was
// last committed to the file - the round-trip path: opening a brand new
// file with no prior commits starts the catalog from an empty Group.
func OpenCatalog(mgr *txn.Manager) (*Catalog, error) {
	tx, err := mgr.StartRead(txn.VersionLatest)
	if err != nil {
		return nil, fmt.Errorf("schema: open catalog: %w", err)
	}
	defer tx.Release()

	g, err := loadGroup(mgr, tx)
	if err != nil {
		return nil, fmt.Errorf("schema: open catalog: %w", err)
	}

	c := &Catalog{
		mgr:   mgr,
		byRef: map[uint64]*Group{tx.TopRef(): g},
	}

	return c, nil
}

// Snapshot returns the Group visible to tx. For a Reading or Frozen
// transaction this is the immutable Group committed at tx.TopRef(); for
// the single in-flight Writing transaction it is a private mutable clone,
// built once per write and reused across every AddTable/CreateObject/...
// call made with that transaction.
func (c *Catalog) Snapshot(tx *txn.Transaction) (*Group, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.State() == txn.Writing {
		if c.writing == nil {
			base, ok := c.byRef[tx.TopRef()]
			if !ok {
				loaded, err := loadGroup(c.mgr, tx)
				if err != nil {
					return nil, err
				}

				base = loaded
			}

			clone, err := base.clone()
			if err != nil {
				return nil, fmt.Errorf("schema: clone group for write: %w", err)
			}

			c.writing = clone
			c.writingRef = tx.TopRef()
		}

		return c.writing, nil
	}

	if g, ok := c.byRef[tx.TopRef()]; ok {
		return g, nil
	}

	g, err := loadGroup(c.mgr, tx)
	if err != nil {
		return nil, err
	}

	c.cacheLocked(tx.TopRef(), g)

	return g, nil
}

// Commit serializes the write transaction's private Group into the arena,
// frees the snapshot it was cloned from (reclaimed once no reader still
// pins it, per the arena's two-generation free list), commits the new ref
// as tx's new top ref, and publishes the result as the cached snapshot for
// the version tx becomes.
func (c *Catalog) Commit(tx *txn.Transaction) error {
	c.mu.Lock()
	g := c.writing
	oldRef := c.writingRef
	c.mu.Unlock()

	if g == nil {
		return fmt.Errorf("schema: commit called with no pending write")
	}

	newRef, err := g.flush(tx)
	if err != nil {
		return fmt.Errorf("schema: flush group snapshot: %w", err)
	}

	if oldRef != 0 {
		if n, sizeErr := blobSize(tx, oldRef); sizeErr == nil {
			tx.Arena().Free(oldRef, n)
		}
	}

	if err := tx.Commit(newRef); err != nil {
		return err
	}

	c.mu.Lock()
	c.cacheLocked(newRef, g)
	c.writing = nil
	c.writingRef = 0
	c.mu.Unlock()

	return nil
}

// Rollback discards the write transaction's private Group clone without
// touching any previously committed snapshot or the arena's free list.
func (c *Catalog) Rollback(tx *txn.Transaction) error {
	c.mu.Lock()
	c.writing = nil
	c.writingRef = 0
	c.mu.Unlock()

	return tx.Rollback()
}

// cacheLocked stores g under ref, evicting an arbitrary entry first if the
// cache is at capacity. Must be called with c.mu held.
func (c *Catalog) cacheLocked(ref uint64, g *Group) {
	if len(c.byRef) >= catalogCacheLimit {
		for evict := range c.byRef {
			delete(c.byRef, evict)
			break
		}
	}

	c.byRef[ref] = g
}
