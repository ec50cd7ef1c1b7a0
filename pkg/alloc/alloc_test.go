package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pakdb/pakdb/pkg/fs"
)

func TestFile_OpenCreatesHeader(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(fs.NewReal(), dir+"/test.pak")
	require.NoError(t, err)
	defer f.Close()

	hdr := f.Header()
	require.EqualValues(t, formatVersion, hdr.FormatVersion)
	require.EqualValues(t, 0, hdr.Version)
}

func TestFile_AllocGrowsAndTranslates(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(fs.NewReal(), dir+"/test.pak")
	require.NoError(t, err)
	defer f.Close()

	ref, err := f.Alloc(64)
	require.NoError(t, err)
	require.Zero(t, ref%8)

	buf, err := f.Translate(ref, 64)
	require.NoError(t, err)
	require.Len(t, buf, 64)

	copy(buf, []byte("hello"))

	buf2, err := f.Translate(ref, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf2))
}

func TestFreeList_reuseAfterRelease(t *testing.T) {
	fl := NewFreeList()

	fl.Free(800, 64)
	require.Equal(t, 0, fl.Len())

	fl.ReleasePending()
	require.Equal(t, 1, fl.Len())

	ref, ok := fl.Alloc(64)
	require.True(t, ok)
	require.EqualValues(t, 800, ref)
	require.Equal(t, 0, fl.Len())
}

func TestFreeList_pendingNotReusableUntilReleased(t *testing.T) {
	fl := NewFreeList()
	fl.Free(100, 32)

	_, ok := fl.Alloc(32)
	require.False(t, ok)

	fl.ResetPending()
	fl.ReleasePending()
	require.Equal(t, 0, fl.Len())
}

func TestHeader_encodeDecodeRoundTrip(t *testing.T) {
	h := Header{FormatVersion: formatVersion, TopRefSelector: 1, Version: 7, FileSize: 4096}
	h.TopRef[1] = 128

	buf := EncodeHeader(h)
	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h.Version, got.Version)
	require.Equal(t, h.CurrentTopRef(), got.CurrentTopRef())
}

func TestHeader_badMagicRejected(t *testing.T) {
	buf := EncodeHeader(Header{FormatVersion: formatVersion})
	buf[0] = 'X'

	_, err := DecodeHeader(buf)
	require.ErrorIs(t, err, ErrInvalidDatabase)
}
