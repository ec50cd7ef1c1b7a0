package alloc

import (
	"fmt"

	"github.com/pakdb/pakdb/pkg/crypto"
	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/metrics"
)

// fileBackend adapts an fs.File (Seek+Read/Write) to crypto.Backend
// (ReadAt/WriteAt), since fs.File - unlike *os.File - does not expose native
// positioned I/O. Every call made through it happens with File.mu already
// held by the caller, so the Seek-then-Read/Write pair is never interleaved
// with another goroutine's.
type fileBackend struct {
	f fs.File
}

func (b *fileBackend) ReadAt(p []byte, off int64) error {
	if _, err := b.f.Seek(off, 0); err != nil {
		return err
	}

	_, err := readFull(b.f, p)

	return err
}

func (b *fileBackend) WriteAt(p []byte, off int64) error {
	if _, err := b.f.Seek(off, 0); err != nil {
		return err
	}

	_, err := b.f.Write(p)

	return err
}

func (b *fileBackend) Sync() error {
	return b.f.Sync()
}

func readFull(f fs.File, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := f.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

// initializeEmptyEncrypted lays out a brand new encrypted file as a whole
// number of page groups (growChunk / crypto.GroupLogicalBytes of them) and
// writes the header into data page 0 through
// the cryptor, so even the very first page on disk is ciphertext.
func (f *File) initializeEmptyEncrypted() error {
	hdr := Header{
		FormatVersion:  formatVersion,
		TopRefSelector: 0,
		Version:        0,
		FileSize:       growChunk,
	}

	groups := growChunk / crypto.GroupLogicalBytes
	physicalSize := int64(groups) * crypto.GroupPhysicalBytes

	if err := f.osFile.Truncate(physicalSize); err != nil {
		return fmt.Errorf("alloc: truncate new encrypted file: %w", err)
	}

	page := make([]byte, crypto.PageSize)
	copy(page, EncodeHeader(hdr))

	if err := f.cryptor.WritePage(f.backend, 0, page); err != nil {
		return fmt.Errorf("alloc: write encrypted header page: %w", err)
	}

	return f.backend.Sync()
}

// mapCurrentEncrypted decrypts every data page of the file into a heap
// buffer standing in for the mmap region plaintext mode uses: f.data is the
// same logical, 8-byte-aligned ref space either way, only the bytes behind
// it come from a decrypt loop instead of the kernel's page cache.
func (f *File) mapCurrentEncrypted() error {
	info, err := f.osFile.Stat()
	if err != nil {
		return fmt.Errorf("alloc: stat encrypted file: %w", err)
	}

	physicalSize := info.Size()
	if physicalSize < crypto.GroupPhysicalBytes {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidDatabase, physicalSize)
	}

	groups := physicalSize / crypto.GroupPhysicalBytes
	logicalSize := groups * crypto.GroupLogicalBytes
	numPages := int(logicalSize / crypto.PageSize)

	data := make([]byte, logicalSize)

	for i := 0; i < numPages; i++ {
		page, uninitialized, err := f.cryptor.ReadPage(f.backend, i)
		if err != nil {
			metrics.EncryptionPageFaultsTotal.WithLabelValues("auth_failed").Inc()
			return fmt.Errorf("alloc: decrypt page %d: %w", i, err)
		}

		if uninitialized {
			metrics.EncryptionPageFaultsTotal.WithLabelValues("uninitialized").Inc()
		} else {
			metrics.EncryptionPageFaultsTotal.WithLabelValues("decrypted").Inc()
		}

		copy(data[i*crypto.PageSize:], page)
	}

	f.data = data
	f.size = logicalSize

	return nil
}

// ensureSpaceEncryptedLocked grows the encrypted file by whole page groups:
// the physical file grows by crypto.GroupPhysicalBytes for every
// crypto.GroupLogicalBytes of logical space needed, and the decrypted
// buffer is extended with zeros - matching what a freshly truncated,
// never-written (all-zero ciphertext) region decrypts to anyway.
func (f *File) ensureSpaceEncryptedLocked(need uint64) error {
	newLogicalSize := f.size
	for uint64(newLogicalSize) < need {
		newLogicalSize += growChunk
	}

	groups := newLogicalSize / crypto.GroupLogicalBytes
	newPhysicalSize := groups * crypto.GroupPhysicalBytes

	if err := f.osFile.Truncate(newPhysicalSize); err != nil {
		return fmt.Errorf("alloc: grow encrypted file to %d: %w", newPhysicalSize, err)
	}

	f.data = append(f.data, make([]byte, newLogicalSize-f.size)...)
	f.size = newLogicalSize

	f.log.Debug().Int64("new_logical_size", newLogicalSize).Msg("grew encrypted arena")

	return nil
}

// msyncEncryptedLocked re-encrypts and writes every logical page back to
// disk through the cryptor, then fsyncs the backend. Unlike mmap's Msync,
// this has no OS-tracked dirty bit to limit the work to what actually
// changed since the last commit - a whole-buffer re-encrypt on every commit
// trades write amplification for not having to build a parallel dirty-page
// tracker on top of pkg/alloc's existing ref-granularity allocator. Fine
// for the scale this engine targets; a production encrypted backend would
// track dirty pages instead.
func (f *File) msyncEncryptedLocked() error {
	numPages := len(f.data) / crypto.PageSize

	for i := 0; i < numPages; i++ {
		page := f.data[i*crypto.PageSize : (i+1)*crypto.PageSize]

		if err := f.cryptor.WritePage(f.backend, i, page); err != nil {
			return fmt.Errorf("alloc: encrypt page %d: %w", i, err)
		}
	}

	metrics.EncryptionPageFaultsTotal.WithLabelValues("write").Add(float64(numPages))

	return f.backend.Sync()
}

// refreshHeaderPageEncryptedLocked re-decrypts data page 0 so RefreshHeader
// observes a commit written by this or another process since the last map.
func (f *File) refreshHeaderPageEncryptedLocked() error {
	page, _, err := f.cryptor.ReadPage(f.backend, 0)
	if err != nil {
		return fmt.Errorf("alloc: decrypt header page: %w", err)
	}

	copy(f.data[:crypto.PageSize], page)

	return nil
}
