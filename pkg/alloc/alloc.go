package alloc

import "fmt"

// align8 rounds n up to the next multiple of 8, since every ref handed out
// by Alloc must be 8-byte aligned (matching the file format's "all refs are
// 8-byte file offsets" rule).
func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// Alloc reserves size bytes and returns an 8-byte-aligned ref to them. It
// first tries the released free list; on a miss it grows the file (via
// File.EnsureSpace) and takes space off the end of the arena.
func (f *File) Alloc(size uint64) (uint64, error) {
	size = align8(size)

	if ref, ok := f.free.Alloc(size); ok {
		return ref, nil
	}

	f.mu.Lock()
	end := align8(uint64(len(f.data)))
	f.mu.Unlock()

	if err := f.EnsureSpace(end, int(size)); err != nil {
		return 0, fmt.Errorf("alloc: grow for %d bytes: %w", size, err)
	}

	return end, nil
}

// Free marks ref, size as freed by the in-progress write transaction. The
// space only becomes reusable once ReleaseFreedByCommit runs, per §4.2's
// two-generation free list.
func (f *File) Free(ref, size uint64) {
	f.free.Free(ref, align8(size))
}

// ReleaseFreedByCommit moves this commit's tentative frees into the
// reusable set. The caller (pkg/txn) is responsible for first checking that
// no live reader still needs the pre-commit snapshot.
func (f *File) ReleaseFreedByCommit() {
	f.free.ReleasePending()
}

// ResetFreeSpaceTracking discards the frees recorded by the in-progress
// write transaction, so they never reach the reusable set. Called on
// rollback. Space the transaction allocated is not returned to the free
// list.
func (f *File) ResetFreeSpaceTracking() {
	f.free.ResetPending()
}
