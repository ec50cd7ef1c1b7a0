// Package crypto implements the page-level AES-256-CBC + HMAC-SHA-224
// encryption layer (§4.7) that makes a mapped pakdb file appear plaintext
// to the rest of the system while every byte on disk is authenticated
// ciphertext.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// ivCollisionRetryLimit bounds the "bump the IV until the HMAC doesn't
// collide with the previous slot's first 4 bytes" loop from §4.7. The spec
// describes this as unbounded; a 16-attempt cap (supplemented here, since
// an unbounded retry is not a real write path) makes a pathological
// collision streak fail closed with ErrIVExhausted instead of looping
// forever.
const ivCollisionRetryLimit = 16

// Backend is the raw physical-offset byte store a Cryptor authenticates
// and encrypts pages against - in pkg/alloc, the data file itself, read and
// written at physical (not logical) offsets.
type Backend interface {
	ReadAt(p []byte, off int64) error
	WriteAt(p []byte, off int64) error
	Sync() error
}

// Keys bundles the independent AES and HMAC keys New requires, so callers
// configuring encryption (pkg/pakdb.Options, pkg/txn.OpenEncrypted) pass a
// single value instead of two bare [32]byte arrays.
type Keys struct {
	AES  [32]byte
	HMAC [32]byte
}

// NewFromKeys is a convenience constructor for New taking a Keys value.
func NewFromKeys(k Keys) (*Cryptor, error) {
	return New(k.AES, k.HMAC)
}

// Cryptor encrypts/authenticates individual 4 KiB pages. It holds only the
// keys and the AES block: every page's IV/HMAC state lives in the metadata
// pages of the Backend and is read from there on each call.
type Cryptor struct {
	aesKey  [32]byte
	hmacKey [32]byte
	block   cipher.Block
}

// New builds a Cryptor from a 32-byte AES key and a 32-byte HMAC key
// (independent keys, since reusing one key for both primitives is the kind
// of shortcut that undermines the authentication guarantee).
func New(aesKey, hmacKey [32]byte) (*Cryptor, error) {
	block, err := aes.NewCipher(aesKey[:])
	if err != nil {
		return nil, err
	}

	return &Cryptor{aesKey: aesKey, hmacKey: hmacKey, block: block}, nil
}

// deriveIV expands (per-page IV counter, physical page offset) into the
// 16-byte CBC IV AES-256 requires, folding both inputs through the cipher
// itself so a page at one offset never reuses another page's keystream
// even when their counters collide.
func (c *Cryptor) deriveIV(ivCounter uint32, physicalOffset int64) [16]byte {
	var seed [16]byte

	binary.LittleEndian.PutUint32(seed[0:4], ivCounter)
	binary.LittleEndian.PutUint64(seed[4:12], uint64(physicalOffset))

	var out [16]byte
	c.block.Encrypt(out[:], seed[:])

	return out
}

func (c *Cryptor) hmacOf(ciphertext []byte) [hmacSize]byte {
	h := hmac.New(sha256.New224, c.hmacKey[:])
	h.Write(ciphertext)

	var out [hmacSize]byte
	copy(out[:], h.Sum(nil))

	return out
}

func nextIV(cur uint32) uint32 {
	n := cur + 1
	if n == 0 {
		n = 1 // 0 is reserved for "never written"
	}

	return n
}

func (c *Cryptor) encryptPage(plaintext []byte, iv [16]byte) []byte {
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(c.block, iv[:]).CryptBlocks(ciphertext, plaintext)

	return ciphertext
}

func (c *Cryptor) decryptPage(ciphertext []byte, iv [16]byte) []byte {
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv[:]).CryptBlocks(plaintext, ciphertext)

	return plaintext
}

// ReadPage decrypts data page index i, returning (zeroed page, true, nil)
// for a page that has never been written (all-zero ciphertext, e.g. a
// freshly ftruncate-grown region) rather than treating it as a failed
// authentication.
func (c *Cryptor) ReadPage(b Backend, i int) (plaintext []byte, uninitialized bool, err error) {
	metaBuf := make([]byte, PageSize)
	if err := b.ReadAt(metaBuf, metadataPagePhysicalOffset(i)); err != nil {
		return nil, false, fmt.Errorf("crypto: read metadata page: %w", err)
	}

	entry := readEntry(metaBuf, i)

	dataOff := dataPagePhysicalOffset(i)

	ciphertext := make([]byte, PageSize)
	if err := b.ReadAt(ciphertext, dataOff); err != nil {
		return nil, false, fmt.Errorf("crypto: read data page: %w", err)
	}

	if isAllZero(ciphertext) {
		return make([]byte, PageSize), true, nil
	}

	got := c.hmacOf(ciphertext)

	switch {
	case hmac.Equal(got[:], entry.hmacCurrent[:]):
		return c.decryptPage(ciphertext, c.deriveIV(entry.ivCurrent, dataOff)), false, nil
	case hmac.Equal(got[:], entry.hmacPrevious[:]):
		// A match on the previous slot means the process crashed between
		// writing the new IV/HMAC to the metadata page and writing the new
		// ciphertext; the previous IV is still the one that decrypts what
		// is actually on disk.
		return c.decryptPage(ciphertext, c.deriveIV(entry.ivPrevious, dataOff)), false, nil
	default:
		return nil, false, ErrDecryptionFailed
	}
}

// WritePage encrypts plaintext and durably commits it as data page index i:
// bump the IV (skipping 0 and any value whose HMAC would collide with the
// previous slot's first 4 bytes), write the metadata page, fsync, then
// write the ciphertext - preserving the old slot until the new one is
// proven durable, so a crash before the ciphertext write is still
// recoverable via the previous IV.
func (c *Cryptor) WritePage(b Backend, i int, plaintext []byte) error {
	if len(plaintext) != PageSize {
		return fmt.Errorf("crypto: page must be exactly %d bytes, got %d", PageSize, len(plaintext))
	}

	metaBuf := make([]byte, PageSize)
	if err := b.ReadAt(metaBuf, metadataPagePhysicalOffset(i)); err != nil {
		return fmt.Errorf("crypto: read metadata page: %w", err)
	}

	entry := readEntry(metaBuf, i)
	dataOff := dataPagePhysicalOffset(i)

	newIV := nextIV(entry.ivCurrent)

	var ciphertext []byte
	var newHMAC [hmacSize]byte

	for attempt := 0; ; attempt++ {
		ciphertext = c.encryptPage(plaintext, c.deriveIV(newIV, dataOff))
		newHMAC = c.hmacOf(ciphertext)

		if !bytes.Equal(newHMAC[:4], entry.hmacCurrent[:4]) {
			break
		}

		if attempt >= ivCollisionRetryLimit {
			return ErrIVExhausted
		}

		newIV = nextIV(newIV)
	}

	entry.ivPrevious, entry.hmacPrevious = entry.ivCurrent, entry.hmacCurrent
	entry.ivCurrent, entry.hmacCurrent = newIV, newHMAC

	writeEntry(metaBuf, i, entry)

	if err := b.WriteAt(metaBuf, metadataPagePhysicalOffset(i)); err != nil {
		return fmt.Errorf("crypto: write metadata page: %w", err)
	}

	if err := b.Sync(); err != nil {
		return fmt.Errorf("crypto: sync metadata page: %w", err)
	}

	if err := b.WriteAt(ciphertext, dataOff); err != nil {
		return fmt.Errorf("crypto: write data page: %w", err)
	}

	return nil
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}

	return true
}
