package alloc

import (
	"sync"

	"github.com/google/btree"
)

// extent is a free byte range, ordered by (size, offset) so Alloc can do an
// O(log n) best-fit lookup instead of a linear scan over every free block.
type extent struct {
	size   uint64
	offset uint64
}

func (e extent) Less(than btree.Item) bool {
	other := than.(extent)
	if e.size != other.size {
		return e.size < other.size
	}

	return e.offset < other.offset
}

// FreeList tracks reusable space across commits. Per §4.2, two generations
// are kept: pending holds refs freed by the in-progress write transaction
// (not yet safe to hand out, since existing readers may still be using
// them), and released holds refs freed by a transaction no snapshot can
// observe any more, which Alloc is allowed to reuse.
type FreeList struct {
	mu       sync.Mutex
	pending  []extent
	released *btree.BTree
}

// NewFreeList returns an empty FreeList.
func NewFreeList() *FreeList {
	return &FreeList{released: btree.New(32)}
}

// Free marks [offset, offset+size) as freed by the current write
// transaction. It is not eligible for reuse until ReleasePending is called
// by the writer once no reader can still observe the freeing transaction.
func (fl *FreeList) Free(offset, size uint64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	fl.pending = append(fl.pending, extent{offset: offset, size: size})
}

// ReleasePending moves every extent accumulated since the last release into
// the reusable set. Called by the writer at commit once it has determined
// no live reader predates the transaction that freed them.
func (fl *FreeList) ReleasePending() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	for _, e := range fl.pending {
		fl.released.ReplaceOrInsert(e)
	}

	fl.pending = fl.pending[:0]
}

// ResetPending discards tentative frees recorded by the current write
// transaction. Called on rollback.
func (fl *FreeList) ResetPending() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	fl.pending = fl.pending[:0]
}

// Alloc finds and removes a released extent of at least size bytes using
// best-fit: the smallest extent that still satisfies the request, so
// fragmentation accumulates in small leftover slivers rather than widening
// across the whole file. Returns (0, false) if no released extent fits.
func (fl *FreeList) Alloc(size uint64) (uint64, bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	var found *extent

	fl.released.AscendGreaterOrEqual(extent{size: size}, func(item btree.Item) bool {
		e := item.(extent)
		found = &e

		return false
	})

	if found == nil {
		return 0, false
	}

	fl.released.Delete(*found)

	if found.size > size {
		leftover := extent{offset: found.offset + size, size: found.size - size}
		fl.released.ReplaceOrInsert(leftover)
	}

	return found.offset, true
}

// Len reports the number of released (reusable) extents, for diagnostics
// and tests.
func (fl *FreeList) Len() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	return fl.released.Len()
}
