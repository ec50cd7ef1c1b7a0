package txn

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pakdb/pakdb/pkg/alloc"
	"github.com/pakdb/pakdb/pkg/metrics"
)

// VersionLatest passed to StartRead/StartFrozen means "whatever is
// currently committed", matching the source's VersionID::latest().
const VersionLatest = ^uint64(0)

// Transaction is one Ready->Reading|Writing|Frozen state-machine instance,
// bound to a single pakdb file via its owning Manager. Accessors built on
// top of a Transaction (Table/Collection/Object references in pkg/schema)
// are not themselves thread-safe, except on a Frozen transaction.
type Transaction struct {
	mgr *Manager

	state   State
	version uint64
	topRef  uint64

	ringIndex int // valid only when state == Reading
}

// State returns the transaction's current state.
func (t *Transaction) State() State { return t.state }

// Version returns the snapshot version this transaction is bound to. Valid
// in every state.
func (t *Transaction) Version() uint64 { return t.version }

// TopRef returns the root ref of this transaction's snapshot, used by
// pkg/schema to resolve the Group's table-of-tables.
func (t *Transaction) TopRef() uint64 { return t.topRef }

// Arena exposes the underlying allocator for pkg/schema/pkg/btree to
// translate refs against. Safe to call in any state.
func (t *Transaction) Arena() *alloc.File { return t.mgr.arena }

// Release ends a Reading or Frozen transaction, returning it to Ready.
// Immediate: never blocks.
func (t *Transaction) Release() {
	if t.state == Reading || t.state == Frozen {
		t.mgr.shared.ReleaseRead(t.ringIndex)
	}

	t.state = Ready
}

// Rollback discards the frees recorded by a Writing transaction and releases
// the writer mutex. Never partial. Space the transaction allocated is not
// returned to the free list.
func (t *Transaction) Rollback() error {
	if t.state != Writing {
		return fmt.Errorf("%w: rollback from %s", ErrWrongTransactState, t.state)
	}

	t.mgr.arena.ResetFreeSpaceTracking()

	if err := t.mgr.history.AbortTransact(); err != nil {
		t.mgr.log.Warn().Err(err).Msg("history abort failed during rollback")
	}

	t.releaseWriterLocks()
	metrics.RollbacksTotal.Inc()

	t.state = Ready

	return nil
}

// Commit runs the crash-safe commit sequence (§4.3):
//  1. compute the new top ref in the free region (caller has already
//     written it via Arena()/pkg/schema before calling Commit)
//  2. sync data pages
//  3. atomically swap the top-ref slot and publish the new version
//  4. signal waiters
//
// If the process dies between steps 2 and 3, the prior top slot remains
// valid and the new data is orphaned; Open does not reclaim that space.
func (t *Transaction) Commit(newTopRef uint64) error {
	if t.state != Writing {
		return fmt.Errorf("%w: commit from %s", ErrWrongTransactState, t.state)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)

	if err := t.mgr.arena.Msync(); err != nil {
		return fmt.Errorf("txn: sync data pages: %w", err)
	}

	newVersion, err := t.mgr.history.PrepareCommit()
	if err != nil {
		return fmt.Errorf("txn: history prepare commit: %w", err)
	}

	if newVersion == 0 {
		newVersion = t.mgr.CurrentVersion() + 1
	}

	hdr := t.mgr.arena.Header()
	next := hdr.WithNewTopRef(newTopRef, newVersion)

	if err := t.mgr.arena.WriteHeader(next); err != nil {
		return fmt.Errorf("txn: write header: %w", err)
	}

	if err := t.mgr.arena.Msync(); err != nil {
		return fmt.Errorf("txn: sync header swap: %w", err)
	}

	if err := t.mgr.history.FinalizeCommit(); err != nil {
		t.mgr.log.Error().Err(err).Msg("history finalize commit failed after durable swap")
	}

	t.reapFreeList()
	t.releaseWriterLocks()

	t.mgr.notifyChange()
	metrics.CommitsTotal.Inc()
	t.mgr.reportGauges()

	t.state = Ready
	t.version = newVersion
	t.topRef = newTopRef

	return nil
}

// reapFreeList merges this commit's tentative frees into the reusable set,
// but only once no live reader still needs a pre-commit snapshot (§4.2,
// testable property 3 and end-to-end scenario 6).
func (t *Transaction) reapFreeList() {
	oldest, pinned := t.mgr.shared.OldestPinnedVersion()
	if pinned && oldest <= t.version {
		return
	}

	t.mgr.arena.ReleaseFreedByCommit()
}

func (t *Transaction) releaseWriterLocks() {
	if t.mgr.writerLock != nil {
		_ = t.mgr.writerLock.Close()
		t.mgr.writerLock = nil
	}

	t.mgr.writerMu.Unlock()
}

// PromoteToWrite upgrades a Reading transaction to Writing in place,
// serializing on the writer mutex exactly as StartWrite would. Used by the
// sync integration to stage local changes atop a read snapshot.
func (t *Transaction) PromoteToWrite() error {
	if t.state != Reading {
		return fmt.Errorf("%w: promote from %s", ErrWrongTransactState, t.state)
	}

	writeTx, err := t.mgr.StartWrite()
	if err != nil {
		return err
	}

	t.mgr.shared.ReleaseRead(t.ringIndex)

	t.state = Writing
	t.version = writeTx.version
	t.topRef = writeTx.topRef

	return nil
}

// CommitAndContinueAsRead commits the write transaction and rebinds the
// same Transaction value to a fresh Reading transaction on the version it
// just published, avoiding a round trip through Ready.
func (t *Transaction) CommitAndContinueAsRead(newTopRef uint64) error {
	if err := t.Commit(newTopRef); err != nil {
		return err
	}

	idx, err := t.mgr.shared.AcquireRead(t.version, t.topRef, t.mgr.arena.Header().FileSize)
	if err != nil {
		return err
	}

	t.state = Reading
	t.ringIndex = idx

	return nil
}

// RollbackAndContinueAsRead rolls back and rebinds to a fresh Reading
// transaction on the latest committed version.
func (t *Transaction) RollbackAndContinueAsRead() error {
	if err := t.Rollback(); err != nil {
		return err
	}

	fresh, err := t.mgr.StartRead(VersionLatest)
	if err != nil {
		return err
	}

	*t = *fresh

	return nil
}

// WaitForChange blocks until the latest committed version exceeds the one
// this transaction holds, or until ReleaseWaitForChange is invoked on the
// Manager. After a release, further waits return immediately until
// EnableWaitForChange is called.
func (t *Transaction) WaitForChange() {
	t.mgr.changeMu.Lock()
	defer t.mgr.changeMu.Unlock()

	for !t.mgr.waitReleased && t.mgr.arena.Header().Version <= t.version {
		t.mgr.changeCond.Wait()
	}
}

// startReadWithRetry retries AcquireRead with backoff when the ring buffer
// is momentarily full, giving readers that Release their snapshots a chance
// to free a slot instead of failing outright.
func startReadWithRetry(m *Manager, version, topRef, fileSize uint64) (int, error) {
	var idx int

	op := func() error {
		var err error
		idx, err = m.shared.AcquireRead(version, topRef, fileSize)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 2 * time.Millisecond
	b.MaxElapsedTime = 20 * time.Millisecond

	err := backoff.Retry(op, b)

	return idx, err
}
