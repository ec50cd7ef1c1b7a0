package alloc

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/pakdb/pakdb/pkg/crypto"
	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/logging"
)

// growChunk is the minimum amount the file grows by when an allocation does
// not fit. Alloc places every allocation that misses the free list at the
// current end of the file, so each such allocation grows (and remaps) the
// file by at least growChunk; the unused tail of an earlier growth is not
// handed out.
const growChunk = 4 << 20 // 4 MiB

// File turns an on-disk file into an arena of 8-byte-aligned refs. It owns
// the mmap and the free lists; pkg/txn builds the transaction/version layer
// on top, and pkg/btree/pkg/schema address into it exclusively through
// Translate.
type File struct {
	mu sync.RWMutex

	osFile fs.File
	data   []byte // current mmap
	size   int64  // current file size, == len(data)

	header Header

	free   *FreeList
	closed bool

	// cryptor and backend are non-nil only for a file opened via
	// OpenEncrypted. When set, f.data is a plain heap buffer holding the
	// decrypted logical view of the file rather than an mmap region - see
	// encrypted.go.
	cryptor *crypto.Cryptor
	backend crypto.Backend

	log logging.Logger
}

// Open opens (creating if necessary) the pakdb file at path and mmaps it.
func Open(filesys fs.FS, path string) (*File, error) {
	return open(filesys, path, nil)
}

// OpenEncrypted opens (creating if necessary) the pakdb file at path with
// every page AES+HMAC encrypted at rest (§4.7) below this package's
// Translate/EnsureSpace surface, using cryptor for every page read and
// write. The rest of the engine - pkg/txn, pkg/schema, pkg/btree - never
// knows encryption is in play: Translate still addresses the same logical,
// plaintext byte space it always has.
func OpenEncrypted(filesys fs.FS, path string, cryptor *crypto.Cryptor) (*File, error) {
	if cryptor == nil {
		return nil, fmt.Errorf("alloc: OpenEncrypted requires a non-nil cryptor")
	}

	return open(filesys, path, cryptor)
}

func open(filesys fs.FS, path string, cryptor *crypto.Cryptor) (*File, error) {
	exists, err := filesys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("alloc: stat %q: %w", path, err)
	}

	osFile, err := filesys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("alloc: open %q: %w", path, err)
	}

	f := &File{
		osFile:  osFile,
		free:    NewFreeList(),
		log:     logging.For("alloc"),
		cryptor: cryptor,
	}

	if cryptor != nil {
		f.backend = &fileBackend{f: osFile}
	}

	if !exists {
		if err := f.initializeEmpty(); err != nil {
			_ = osFile.Close()
			return nil, err
		}
	}

	if err := f.mapCurrent(); err != nil {
		_ = osFile.Close()
		return nil, err
	}

	hdr, err := DecodeHeader(f.data[:headerSize])
	if err != nil {
		_ = f.unmapLocked()
		_ = osFile.Close()
		return nil, err
	}

	f.header = hdr

	return f, nil
}

func (f *File) initializeEmpty() error {
	if f.cryptor != nil {
		return f.initializeEmptyEncrypted()
	}

	hdr := Header{
		FormatVersion:  formatVersion,
		TopRefSelector: 0,
		Version:        0,
		FileSize:       growChunk,
	}

	buf := make([]byte, growChunk)
	copy(buf, EncodeHeader(hdr))

	if err := f.osFile.Truncate(growChunk); err != nil {
		return fmt.Errorf("alloc: truncate new file: %w", err)
	}

	if _, err := f.osFile.Seek(0, 0); err != nil {
		return fmt.Errorf("alloc: seek new file: %w", err)
	}

	if _, err := f.osFile.Write(buf[:headerSize]); err != nil {
		return fmt.Errorf("alloc: write header: %w", err)
	}

	return f.osFile.Sync()
}

func (f *File) mapCurrent() error {
	if f.cryptor != nil {
		return f.mapCurrentEncrypted()
	}

	info, err := f.osFile.Stat()
	if err != nil {
		return fmt.Errorf("alloc: stat mapped file: %w", err)
	}

	size := info.Size()
	if size < headerSize {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidDatabase, size)
	}

	data, err := unix.Mmap(int(f.osFile.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("alloc: mmap: %w", err)
	}

	f.data = data
	f.size = size

	return nil
}

func (f *File) unmapLocked() error {
	if f.cryptor != nil {
		f.data = nil
		return nil
	}

	if f.data == nil {
		return nil
	}

	err := unix.Munmap(f.data)
	f.data = nil

	return err
}

// Translate resolves ref to a live byte slice within the current mapping of
// length n. Growth between calls is handled transparently: if the file grew
// since the last Translate, the caller always sees the latest mapping
// because remapping happens inside EnsureSpace, never lazily here.
func (f *File) Translate(ref uint64, n int) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}

	if ref%8 != 0 {
		return nil, fmt.Errorf("%w: ref=%d", ErrRefNotAligned, ref)
	}

	end := ref + uint64(n)
	if end > uint64(len(f.data)) {
		return nil, fmt.Errorf("%w: ref=%d len=%d filesize=%d", ErrRefOutOfRange, ref, n, len(f.data))
	}

	return f.data[ref:end], nil
}

// EnsureSpace grows and remaps the file, if needed, so that at least
// upToRef+n bytes are addressable. Called by the allocator before handing
// out a ref past the current mapping.
func (f *File) EnsureSpace(upToRef uint64, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	need := upToRef + uint64(n)
	if need <= uint64(len(f.data)) {
		return nil
	}

	if f.cryptor != nil {
		return f.ensureSpaceEncryptedLocked(need)
	}

	newSize := f.size
	for uint64(newSize) < need {
		newSize += growChunk
	}

	if err := f.osFile.Truncate(newSize); err != nil {
		return fmt.Errorf("alloc: grow file to %d: %w", newSize, err)
	}

	if err := f.unmapLocked(); err != nil {
		f.log.Warn().Err(err).Msg("munmap before grow-remap failed")
	}

	if err := f.mapCurrent(); err != nil {
		return fmt.Errorf("alloc: remap after grow: %w", err)
	}

	f.log.Debug().Int64("new_size", newSize).Msg("grew arena")

	return nil
}

// Msync flushes the mapping's dirty pages to disk. Used by the commit
// sequence between writing data pages and swapping the top-ref slot.
func (f *File) Msync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrClosed
	}

	if f.cryptor != nil {
		return f.msyncEncryptedLocked()
	}

	return unix.Msync(f.data, unix.MS_SYNC)
}

// Header returns the last header decoded from the file. Callers needing the
// live value after a commit should re-read via RefreshHeader.
func (f *File) Header() Header {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.header
}

// RefreshHeader re-decodes the header region of the mapping, picking up a
// commit made by this or another process.
func (f *File) RefreshHeader() (Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cryptor != nil {
		if err := f.refreshHeaderPageEncryptedLocked(); err != nil {
			return Header{}, err
		}
	}

	hdr, err := DecodeHeader(f.data[:headerSize])
	if err != nil {
		return Header{}, err
	}

	f.header = hdr

	return hdr, nil
}

// WriteHeader encodes and writes hdr into the mapping at offset 0. Callers
// must Msync afterwards to make the write crash-safe.
func (f *File) WriteHeader(hdr Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copy(f.data[:headerSize], EncodeHeader(hdr))
	f.header = hdr

	return nil
}

// FreeList exposes the allocator's free-space tracker so pkg/txn can merge
// per-transaction frees into it at commit.
func (f *File) FreeList() *FreeList {
	return f.free
}

// Size returns the current mapped file size in bytes.
func (f *File) Size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return int64(len(f.data))
}

// Close unmaps and closes the underlying file. Idempotent.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true

	unmapErr := f.unmapLocked()
	closeErr := f.osFile.Close()

	if unmapErr != nil {
		return fmt.Errorf("alloc: munmap: %w", unmapErr)
	}

	if closeErr != nil {
		return fmt.Errorf("alloc: close: %w", closeErr)
	}

	return nil
}
