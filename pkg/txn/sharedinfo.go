package txn

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"golang.org/x/sys/unix"

	"github.com/google/uuid"
	"github.com/pakdb/pakdb/pkg/fs"
)

// SharedInfo is the `<dbfile>.lock` sidecar: a shared-memory structure
// (mmap'd, so it works across processes) holding the read-lock ring buffer
// plus the format version used for lock-file compatibility checks. Only one
// writer mutates it at a time, serialized by Locker's flock on the same
// path.
const (
	sharedInfoMagic    = "PAKL"
	sharedInfoFmtVer   = uint16(1)
	sharedInfoHdrSize  = 32
	ringEntrySize      = 40
	ringCapacity       = 256
	sharedInfoFileSize = sharedInfoHdrSize + ringEntrySize*ringCapacity
)

// ring entry field offsets, relative to the start of the entry.
const (
	entryGeneration = 0 // seqlock: even = stable, odd = write in progress
	entryVersion    = 8
	entryReaders    = 16
	entryTopRef     = 24
	entryFileSize   = 32
)

// ReadLockEntry is the decoded view of one ring buffer slot.
type ReadLockEntry struct {
	Version     uint64
	ReaderCount uint64
	TopRef      uint64
	FileSize    uint64
}

// SharedInfo wraps the mmap'd lock file.
type SharedInfo struct {
	osFile  fs.File
	data    []byte
	path    string
	session uuid.UUID // generated per handle at open, not persisted
}

// OpenSharedInfo opens (creating if necessary) the lock file at path and
// maps its ring buffer.
func OpenSharedInfo(filesys fs.FS, path string) (*SharedInfo, error) {
	exists, err := filesys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("txn: stat lock file: %w", err)
	}

	osFile, err := filesys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("txn: open lock file: %w", err)
	}

	si := &SharedInfo{osFile: osFile, path: path, session: uuid.New()}

	if !exists {
		if err := si.initializeEmpty(); err != nil {
			_ = osFile.Close()
			return nil, err
		}
	}

	if err := si.mapFile(); err != nil {
		_ = osFile.Close()
		return nil, err
	}

	if err := si.validateHeader(); err != nil {
		_ = si.Close()
		return nil, err
	}

	return si, nil
}

func (si *SharedInfo) initializeEmpty() error {
	if err := si.osFile.Truncate(sharedInfoFileSize); err != nil {
		return fmt.Errorf("txn: truncate lock file: %w", err)
	}

	hdr := make([]byte, sharedInfoHdrSize)
	copy(hdr[0:4], sharedInfoMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], sharedInfoFmtVer)

	crc := crc32.Checksum(hdr[:sharedInfoHdrSize-4], crc32.MakeTable(crc32.Castagnoli))
	binary.LittleEndian.PutUint32(hdr[sharedInfoHdrSize-4:], crc)

	if _, err := si.osFile.Seek(0, 0); err != nil {
		return err
	}

	if _, err := si.osFile.Write(hdr); err != nil {
		return fmt.Errorf("txn: write lock header: %w", err)
	}

	return si.osFile.Sync()
}

func (si *SharedInfo) mapFile() error {
	info, err := si.osFile.Stat()
	if err != nil {
		return fmt.Errorf("txn: stat lock file: %w", err)
	}

	data, err := unix.Mmap(int(si.osFile.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("txn: mmap lock file: %w", err)
	}

	si.data = data

	return nil
}

func (si *SharedInfo) validateHeader() error {
	if len(si.data) < sharedInfoHdrSize {
		return fmt.Errorf("%w: lock file too small", ErrIncompatibleLockFile)
	}

	if string(si.data[0:4]) != sharedInfoMagic {
		return fmt.Errorf("%w: bad magic", ErrIncompatibleLockFile)
	}

	ver := binary.LittleEndian.Uint16(si.data[4:6])
	if ver != sharedInfoFmtVer {
		return fmt.Errorf("%w: format version %d", ErrIncompatibleLockFile, ver)
	}

	return nil
}

func (si *SharedInfo) entry(i int) []byte {
	off := sharedInfoHdrSize + i*ringEntrySize
	return si.data[off : off+ringEntrySize]
}

// AcquireRead either finds an existing ring buffer entry for version and
// increments its reader count, or inserts a new entry, returning the slot
// index the caller must pass to ReleaseRead.
func (si *SharedInfo) AcquireRead(version, topRef, fileSize uint64) (int, error) {
	for i := 0; i < ringCapacity; i++ {
		e := si.entry(i)

		if atomicLoadUint64(e[entryVersion:]) == version && atomicLoadUint64(e[entryReaders:]) > 0 {
			si.bumpReaders(e, 1)
			return i, nil
		}
	}

	for i := 0; i < ringCapacity; i++ {
		e := si.entry(i)
		if atomicLoadUint64(e[entryReaders:]) == 0 {
			si.writeEntry(e, version, 1, topRef, fileSize)
			return i, nil
		}
	}

	return 0, fmt.Errorf("txn: read-lock ring buffer full (capacity %d)", ringCapacity)
}

// ReleaseRead decrements the reader count on the entry at idx.
func (si *SharedInfo) ReleaseRead(idx int) {
	si.bumpReaders(si.entry(idx), -1)
}

func (si *SharedInfo) bumpReaders(e []byte, delta int64) {
	gen := atomicLoadUint32(e[entryGeneration:])
	atomicStoreUint32(e[entryGeneration:], gen+1)

	cur := atomicLoadUint64(e[entryReaders:])
	next := int64(cur) + delta
	if next < 0 {
		next = 0
	}

	atomicStoreUint64(e[entryReaders:], uint64(next))
	atomicStoreUint32(e[entryGeneration:], gen+2)
}

func (si *SharedInfo) writeEntry(e []byte, version, readers, topRef, fileSize uint64) {
	gen := atomicLoadUint32(e[entryGeneration:])
	atomicStoreUint32(e[entryGeneration:], gen+1)

	atomicStoreUint64(e[entryVersion:], version)
	atomicStoreUint64(e[entryReaders:], readers)
	atomicStoreUint64(e[entryTopRef:], topRef)
	atomicStoreUint64(e[entryFileSize:], fileSize)

	atomicStoreUint32(e[entryGeneration:], gen+2)
}

// OldestPinnedVersion returns the lowest version with a nonzero reader
// count, or ok=false if no version is pinned (the writer may reap
// everything up to and including the latest committed version).
func (si *SharedInfo) OldestPinnedVersion() (version uint64, ok bool) {
	var min uint64
	found := false

	for i := 0; i < ringCapacity; i++ {
		e := si.entry(i)
		if atomicLoadUint64(e[entryReaders:]) == 0 {
			continue
		}

		v := atomicLoadUint64(e[entryVersion:])
		if !found || v < min {
			min = v
			found = true
		}
	}

	return min, found
}

// Close unmaps and closes the lock file. The lock file itself is never
// deleted - its lifetime is "exists whenever any DB handle is open on the
// realm file", per the external-interfaces contract, and crash recovery
// relies on the OS releasing flock automatically.
func (si *SharedInfo) Close() error {
	if si.data != nil {
		err := unix.Munmap(si.data)
		si.data = nil

		if err != nil {
			_ = si.osFile.Close()
			return fmt.Errorf("txn: munmap lock file: %w", err)
		}
	}

	return si.osFile.Close()
}

// Session returns the UUID generated for this handle when the lock file was
// opened. It is kept in memory only; nothing writes it to the lock file.
func (si *SharedInfo) Session() uuid.UUID {
	return si.session
}
