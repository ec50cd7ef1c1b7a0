package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pakdb/pakdb/pkg/crypto"
	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/history"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()

	dir := t.TempDir()
	m, err := Open(fs.NewReal(), dir+"/test.pak", history.Null{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestManager_startReadOnEmptyDB_returnsVersionZero(t *testing.T) {
	m := openTestManager(t)

	tx, err := m.StartRead(VersionLatest)
	require.NoError(t, err)
	defer tx.Release()

	require.EqualValues(t, 0, tx.Version())
	require.Equal(t, Reading, tx.State())
}

func TestManager_commitAdvancesVersion(t *testing.T) {
	m := openTestManager(t)

	wtx, err := m.StartWrite()
	require.NoError(t, err)

	ref, err := wtx.Arena().Alloc(64)
	require.NoError(t, err)

	require.NoError(t, wtx.Commit(ref))
	require.EqualValues(t, 1, m.CurrentVersion())

	rtx, err := m.StartRead(VersionLatest)
	require.NoError(t, err)
	defer rtx.Release()

	require.EqualValues(t, 1, rtx.Version())
}

func TestManager_readerPinsOldSnapshotAcrossCommit(t *testing.T) {
	m := openTestManager(t)

	r1, err := m.StartRead(VersionLatest)
	require.NoError(t, err)

	wtx, err := m.StartWrite()
	require.NoError(t, err)
	ref, err := wtx.Arena().Alloc(8)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit(ref))

	// r1 was started before the commit; it must still observe version 0.
	require.EqualValues(t, 0, r1.Version())

	r2, err := m.StartRead(VersionLatest)
	require.NoError(t, err)
	defer r2.Release()

	require.EqualValues(t, 1, r2.Version())

	r1.Release()
}

func TestManager_rollbackResetsFreeSpaceTracking(t *testing.T) {
	m := openTestManager(t)

	wtx, err := m.StartWrite()
	require.NoError(t, err)

	wtx.Arena().Free(800, 64)
	require.NoError(t, wtx.Rollback())

	wtx2, err := m.StartWrite()
	require.NoError(t, err)
	defer wtx2.Rollback()

	// the freed extent from the rolled-back transaction must not have
	// leaked into the reusable set.
	require.Equal(t, 0, wtx2.Arena().FreeList().Len())
}

func TestManager_tryStartWrite_busyWhileWriterActive(t *testing.T) {
	m := openTestManager(t)

	wtx, err := m.StartWrite()
	require.NoError(t, err)
	defer wtx.Rollback()

	_, err = m.TryStartWrite()
	require.ErrorIs(t, err, ErrBusy)
}

func TestManager_startRead_badVersion(t *testing.T) {
	m := openTestManager(t)

	_, err := m.StartRead(99)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestManager_openEncrypted_commitAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.pak"

	var keys crypto.Keys
	for i := range keys.AES {
		keys.AES[i] = byte(i)
		keys.HMAC[i] = byte(255 - i)
	}

	m, err := OpenEncrypted(fs.NewReal(), path, history.Null{}, &keys)
	require.NoError(t, err)

	wtx, err := m.StartWrite()
	require.NoError(t, err)

	ref, err := wtx.Arena().Alloc(64)
	require.NoError(t, err)

	buf, err := wtx.Arena().Translate(ref, 5)
	require.NoError(t, err)
	copy(buf, []byte("hola!"))

	require.NoError(t, wtx.Commit(ref))
	require.NoError(t, m.Close())

	reopened, err := OpenEncrypted(fs.NewReal(), path, history.Null{}, &keys)
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, 1, reopened.CurrentVersion())

	rtx, err := reopened.StartRead(VersionLatest)
	require.NoError(t, err)
	defer rtx.Release()

	got, err := rtx.Arena().Translate(ref, 5)
	require.NoError(t, err)
	require.Equal(t, "hola!", string(got))
}
