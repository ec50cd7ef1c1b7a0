package txn

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pakdb/pakdb/pkg/alloc"
	"github.com/pakdb/pakdb/pkg/crypto"
	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/history"
	"github.com/pakdb/pakdb/pkg/logging"
	"github.com/pakdb/pakdb/pkg/metrics"
)

// Manager implements single-writer/many-reader MVCC over one pakdb file. It
// owns the arena (*alloc.File), the cross-process lock file (*SharedInfo),
// and the in-process writer mutex; pkg/schema and pkg/query build their
// Group/Table/Query surfaces on top of transactions vended here.
type Manager struct {
	arena  *alloc.File
	shared *SharedInfo
	locker *fs.Locker
	lockPath string

	writerMu   sync.Mutex // serializes Writing transactions in-process
	writerLock *fs.Lock   // cross-process exclusion, held only while Writing

	changeMu sync.Mutex
	changeCond *sync.Cond
	waitReleased bool

	history history.History

	log logging.Logger
}

// Open opens path (creating it if necessary) and its `<path>.lock` sidecar,
// returning a ready Manager.
func Open(filesys fs.FS, path string, hist history.History) (*Manager, error) {
	arena, err := alloc.Open(filesys, path)
	if err != nil {
		return nil, err
	}

	return newManager(filesys, path, hist, arena)
}

// OpenEncrypted is Open with every page of path transparently AES+HMAC
// encrypted at rest (§4.7) via keys. The lock sidecar, SharedInfo, and
// every Transaction/Manager method behave identically to the unencrypted
// path - pkg/alloc.File hides the ciphertext below Translate.
func OpenEncrypted(filesys fs.FS, path string, hist history.History, keys *crypto.Keys) (*Manager, error) {
	cryptor, err := crypto.NewFromKeys(*keys)
	if err != nil {
		return nil, fmt.Errorf("txn: build cryptor: %w", err)
	}

	arena, err := alloc.OpenEncrypted(filesys, path, cryptor)
	if err != nil {
		return nil, err
	}

	return newManager(filesys, path, hist, arena)
}

func newManager(filesys fs.FS, path string, hist history.History, arena *alloc.File) (*Manager, error) {
	lockPath := path + ".lock"

	shared, err := OpenSharedInfo(filesys, lockPath)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}

	m := &Manager{
		arena:    arena,
		shared:   shared,
		locker:   fs.NewLocker(filesys),
		lockPath: lockPath,
		history:  hist,
		log:      logging.For("txn"),
	}
	m.changeCond = sync.NewCond(&m.changeMu)

	return m, nil
}

// Close releases the arena and lock file. Does not remove the lock file
// itself (see SharedInfo.Close).
func (m *Manager) Close() error {
	arenaErr := m.arena.Close()
	sharedErr := m.shared.Close()

	if arenaErr != nil {
		return arenaErr
	}

	return sharedErr
}

// CurrentVersion returns the latest committed version visible in the file
// header.
func (m *Manager) CurrentVersion() uint64 {
	return m.arena.Header().Version
}

// StartRead begins a Reading transaction pinned to version, or to the
// latest committed version when version == VersionLatest. Returns
// ErrBadVersion if the requested version is newer than the latest or has
// already been reaped (no reader pins it in the ring buffer any more).
func (m *Manager) StartRead(version uint64) (*Transaction, error) {
	hdr, err := m.arena.RefreshHeader()
	if err != nil {
		return nil, err
	}

	if version == VersionLatest {
		version = hdr.Version
	}

	if version > hdr.Version {
		return nil, fmt.Errorf("%w: %d (latest is %d)", ErrBadVersion, version, hdr.Version)
	}

	topRef := hdr.CurrentTopRef()
	if version != hdr.Version {
		found := false
		for i := 0; i < ringCapacity && !found; i++ {
			e := m.shared.entry(i)
			if atomicLoadUint64(e[entryReaders:]) > 0 && atomicLoadUint64(e[entryVersion:]) == version {
				topRef, found = atomicLoadUint64(e[entryTopRef:]), true
			}
		}

		if !found {
			return nil, fmt.Errorf("%w: %d has been reaped", ErrBadVersion, version)
		}
	}

	idx, err := startReadWithRetry(m, version, topRef, hdr.FileSize)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		mgr:        m,
		state:      Reading,
		version:    version,
		topRef:     topRef,
		ringIndex:  idx,
	}, nil
}

// StartWrite serializes on the writer mutex (in-process, then
// cross-process) and rebinds to the latest committed version.
func (m *Manager) StartWrite() (*Transaction, error) {
	m.writerMu.Lock()

	lock, err := m.locker.Lock(m.lockPath)
	if err != nil {
		m.writerMu.Unlock()
		return nil, fmt.Errorf("txn: acquire cross-process writer lock: %w", err)
	}

	m.writerLock = lock

	hdr := m.arena.Header()

	return &Transaction{
		mgr:     m,
		state:   Writing,
		version: hdr.Version,
		topRef:  hdr.CurrentTopRef(),
	}, nil
}

// TryStartWrite is the non-blocking form of StartWrite, returning ErrBusy if
// another writer (in this process or another) already holds the role.
func (m *Manager) TryStartWrite() (*Transaction, error) {
	if !m.writerMu.TryLock() {
		return nil, ErrBusy
	}

	lock, err := m.locker.TryLock(m.lockPath)
	if err != nil {
		m.writerMu.Unlock()

		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, ErrBusy
		}

		return nil, fmt.Errorf("txn: acquire cross-process writer lock: %w", err)
	}

	m.writerLock = lock

	hdr := m.arena.Header()

	return &Transaction{
		mgr:     m,
		state:   Writing,
		version: hdr.Version,
		topRef:  hdr.CurrentTopRef(),
	}, nil
}

// StartFrozen returns a read-only, thread-safe, immutable transaction bound
// to version. Frozen transactions never transition again and do not occupy
// a ring buffer reaping slot differently from a Reading one.
func (m *Manager) StartFrozen(version uint64) (*Transaction, error) {
	tx, err := m.StartRead(version)
	if err != nil {
		return nil, err
	}

	tx.state = Frozen

	return tx, nil
}

// notifyChange wakes every goroutine blocked in Transaction.WaitForChange.
func (m *Manager) notifyChange() {
	m.changeMu.Lock()
	m.changeCond.Broadcast()
	m.changeMu.Unlock()
}

// enableWaitForChange resets the "released" latch so future WaitForChange
// calls block again instead of returning immediately.
func (m *Manager) enableWaitForChange() {
	m.changeMu.Lock()
	m.waitReleased = false
	m.changeMu.Unlock()
}

// releaseWaitForChange makes every current and future WaitForChange call
// return immediately, until EnableWaitForChange is called again.
func (m *Manager) releaseWaitForChange() {
	m.changeMu.Lock()
	m.waitReleased = true
	m.changeCond.Broadcast()
	m.changeMu.Unlock()
}

// EnableWaitForChange re-arms WaitForChange after a prior ReleaseWaitForChange.
func (m *Manager) EnableWaitForChange() { m.enableWaitForChange() }

// ReleaseWaitForChange makes blocked and future waiters return immediately.
func (m *Manager) ReleaseWaitForChange() { m.releaseWaitForChange() }

// reportGauges reports the current ring buffer occupancy and free-list size
// to the package-level Prometheus gauges.
func (m *Manager) reportGauges() {
	live := 0
	for i := 0; i < ringCapacity; i++ {
		if atomicLoadUint64(m.shared.entry(i)[entryReaders:]) > 0 {
			live++
		}
	}

	metrics.ActiveReaders.Set(float64(live))

	metrics.FreeListExtents.Set(float64(m.arena.FreeList().Len()))
}
