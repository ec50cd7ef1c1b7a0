package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pakdb/pakdb/pkg/crypto"
	"github.com/pakdb/pakdb/pkg/fs"
)

func testCryptor(t *testing.T) *crypto.Cryptor {
	t.Helper()

	var aesKey, hmacKey [32]byte
	for i := range aesKey {
		aesKey[i] = byte(i)
		hmacKey[i] = byte(255 - i)
	}

	c, err := crypto.New(aesKey, hmacKey)
	require.NoError(t, err)

	return c
}

func TestFile_OpenEncryptedCreatesHeader(t *testing.T) {
	dir := t.TempDir()

	f, err := OpenEncrypted(fs.NewReal(), dir+"/test.pak", testCryptor(t))
	require.NoError(t, err)
	defer f.Close()

	hdr := f.Header()
	require.EqualValues(t, formatVersion, hdr.FormatVersion)
	require.EqualValues(t, 0, hdr.Version)
}

func TestFile_OpenEncryptedAllocTranslateMsyncRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.pak"
	cryptor := testCryptor(t)

	f, err := OpenEncrypted(fs.NewReal(), path, cryptor)
	require.NoError(t, err)

	ref, err := f.Alloc(64)
	require.NoError(t, err)

	buf, err := f.Translate(ref, 64)
	require.NoError(t, err)
	copy(buf, []byte("hello, encrypted world"))

	require.NoError(t, f.Msync())
	require.NoError(t, f.Close())

	reopened, err := OpenEncrypted(fs.NewReal(), path, cryptor)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Translate(ref, len("hello, encrypted world"))
	require.NoError(t, err)
	require.Equal(t, "hello, encrypted world", string(got))
}

func TestFile_OpenEncryptedGrowsInWholeGroups(t *testing.T) {
	dir := t.TempDir()

	f, err := OpenEncrypted(fs.NewReal(), dir+"/test.pak", testCryptor(t))
	require.NoError(t, err)
	defer f.Close()

	// Force growth past the file's initial page groups.
	ref, err := f.Alloc(uint64(crypto.GroupLogicalBytes))
	require.NoError(t, err)

	_, err = f.Translate(ref, int(crypto.GroupLogicalBytes))
	require.NoError(t, err)

	info, err := f.osFile.Stat()
	require.NoError(t, err)
	require.Zero(t, info.Size()%crypto.GroupPhysicalBytes)
}
