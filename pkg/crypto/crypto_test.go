package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type memBackend struct {
	buf []byte
}

func newMemBackend(size int) *memBackend {
	return &memBackend{buf: make([]byte, size)}
}

func (m *memBackend) ReadAt(p []byte, off int64) error {
	copy(p, m.buf[off:off+int64(len(p))])
	return nil
}

func (m *memBackend) WriteAt(p []byte, off int64) error {
	copy(m.buf[off:off+int64(len(p))], p)
	return nil
}

func (m *memBackend) Sync() error { return nil }

func testCryptor(t *testing.T) *Cryptor {
	t.Helper()

	var aesKey, hmacKey [32]byte
	for i := range aesKey {
		aesKey[i] = byte(i)
		hmacKey[i] = byte(255 - i)
	}

	c, err := New(aesKey, hmacKey)
	require.NoError(t, err)

	return c
}

func TestCryptor_writeThenRead_roundTrips(t *testing.T) {
	c := testCryptor(t)
	backend := newMemBackend(groupSize * PageSize)

	plaintext := bytes.Repeat([]byte{0xAB}, PageSize)
	require.NoError(t, c.WritePage(backend, 0, plaintext))

	got, uninit, err := c.ReadPage(backend, 0)
	require.NoError(t, err)
	require.False(t, uninit)
	require.Equal(t, plaintext, got)
}

func TestCryptor_neverWrittenPage_reportsUninitialized(t *testing.T) {
	c := testCryptor(t)
	backend := newMemBackend(groupSize * PageSize)

	got, uninit, err := c.ReadPage(backend, 3)
	require.NoError(t, err)
	require.True(t, uninit)
	require.Equal(t, make([]byte, PageSize), got)
}

func TestCryptor_crashBetweenMetadataAndDataWrite_recoversPreviousSlot(t *testing.T) {
	c := testCryptor(t)
	backend := newMemBackend(groupSize * PageSize)

	first := bytes.Repeat([]byte{0x11}, PageSize)
	require.NoError(t, c.WritePage(backend, 5, first))

	// Simulate a second write that updates the metadata page (IV/HMAC
	// rotated) but crashes before the new ciphertext is written: the data
	// page on disk still holds `first`'s ciphertext, authenticated only by
	// the now-previous slot.
	second := bytes.Repeat([]byte{0x22}, PageSize)

	metaOff := metadataPagePhysicalOffset(5)
	metaBuf := make([]byte, PageSize)
	require.NoError(t, backend.ReadAt(metaBuf, metaOff))
	entry := readEntry(metaBuf, 5)

	dataOff := dataPagePhysicalOffset(5)
	newIV := nextIV(entry.ivCurrent)
	ciphertext := c.encryptPage(second, c.deriveIV(newIV, dataOff))
	newHMAC := c.hmacOf(ciphertext)

	entry.ivPrevious, entry.hmacPrevious = entry.ivCurrent, entry.hmacCurrent
	entry.ivCurrent, entry.hmacCurrent = newIV, newHMAC
	writeEntry(metaBuf, 5, entry)
	require.NoError(t, backend.WriteAt(metaBuf, metaOff))
	// Deliberately skip writing the new ciphertext page.

	got, uninit, err := c.ReadPage(backend, 5)
	require.NoError(t, err)
	require.False(t, uninit)
	require.Equal(t, first, got, "must recover the previous slot's plaintext")
}

func TestCryptor_corruptedCiphertext_failsClosed(t *testing.T) {
	c := testCryptor(t)
	backend := newMemBackend(groupSize * PageSize)

	require.NoError(t, c.WritePage(backend, 1, bytes.Repeat([]byte{0x33}, PageSize)))

	dataOff := dataPagePhysicalOffset(1)
	corrupt := make([]byte, PageSize)
	require.NoError(t, backend.ReadAt(corrupt, dataOff))
	corrupt[0] ^= 0xFF
	require.NoError(t, backend.WriteAt(corrupt, dataOff))

	_, _, err := c.ReadPage(backend, 1)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNextIV_skipsZero(t *testing.T) {
	require.EqualValues(t, 1, nextIV(0))
	require.NotZero(t, nextIV(^uint32(0)))
}

func TestOffsetMapping_roundTrips(t *testing.T) {
	for _, logical := range []int64{0, 4096, 64 * 4096, 64*4096 + 4096, 1000 * 4096} {
		phys := PhysicalOffset(logical)
		require.Equal(t, logical, LogicalOffset(phys))
	}
}
