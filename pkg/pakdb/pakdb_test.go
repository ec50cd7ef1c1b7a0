package pakdb

import (
	"path/filepath"
	"testing"

	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.pakdb")

	db, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db, path
}

func TestOpen_createsTableAndObject(t *testing.T) {
	db, _ := openTestDB(t)

	tx, err := db.BeginWrite()
	require.NoError(t, err)

	group, err := db.Group(tx)
	require.NoError(t, err)

	people, err := group.AddTable(tx, "Person", schema.TableOptions{})
	require.NoError(t, err)

	ageCol, err := people.AddColumn(tx, "age", schema.Int)
	require.NoError(t, err)

	key, err := people.CreateObject(tx)
	require.NoError(t, err)
	obj, err := people.GetObject(key)
	require.NoError(t, err)
	require.NoError(t, obj.SetInt(tx, ageCol, 42))

	require.NoError(t, db.Commit(tx))

	rtx, err := db.BeginRead()
	require.NoError(t, err)
	defer rtx.Release()

	rgroup, err := db.Group(rtx)
	require.NoError(t, err)

	table, err := rgroup.GetTableByName("Person")
	require.NoError(t, err)

	got, err := table.GetObject(obj.Key())
	require.NoError(t, err)

	age, err := got.GetInt(ageCol)
	require.NoError(t, err)
	require.EqualValues(t, 42, age)
}

// TestOpen_roundTripsAcrossClose commits a table, a column, and a row,
// closes the database, reopens the same file, and checks the schema and row
// data read back identical - the round-trip law a brand new Group per Open
// would silently violate.
func TestOpen_roundTripsAcrossClose(t *testing.T) {
	db, path := openTestDB(t)

	tx, err := db.BeginWrite()
	require.NoError(t, err)

	group, err := db.Group(tx)
	require.NoError(t, err)

	people, err := group.AddTable(tx, "Person", schema.TableOptions{})
	require.NoError(t, err)

	nameCol, err := people.AddColumn(tx, "name", schema.String)
	require.NoError(t, err)

	ageCol, err := people.AddColumn(tx, "age", schema.Int)
	require.NoError(t, err)

	key, err := people.CreateObject(tx)
	require.NoError(t, err)
	obj, err := people.GetObject(key)
	require.NoError(t, err)
	require.NoError(t, obj.SetString(tx, nameCol, "Ada"))
	require.NoError(t, obj.SetInt(tx, ageCol, 36))

	objKey := obj.Key()

	require.NoError(t, db.Commit(tx))
	require.NoError(t, db.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	rtx, err := reopened.BeginRead()
	require.NoError(t, err)
	defer rtx.Release()

	rgroup, err := reopened.Group(rtx)
	require.NoError(t, err)

	table, err := rgroup.GetTableByName("Person")
	require.NoError(t, err)

	reAge, err := table.ColumnByName("age")
	require.NoError(t, err)

	reName, err := table.ColumnByName("name")
	require.NoError(t, err)

	got, err := table.GetObject(objKey)
	require.NoError(t, err)

	name, err := got.GetString(reName.Key)
	require.NoError(t, err)
	require.Equal(t, "Ada", name)

	age, err := got.GetInt(reAge.Key)
	require.NoError(t, err)
	require.EqualValues(t, 36, age)
}

// TestOpen_readerIsolatedFromConcurrentWriter verifies that a read
// transaction started before a write transaction's commit never observes
// the table that write added, even though both eventually resolve against
// the same in-process Catalog.
func TestOpen_readerIsolatedFromConcurrentWriter(t *testing.T) {
	db, _ := openTestDB(t)

	rtx, err := db.BeginRead()
	require.NoError(t, err)
	defer rtx.Release()

	wtx, err := db.BeginWrite()
	require.NoError(t, err)

	wgroup, err := db.Group(wtx)
	require.NoError(t, err)

	_, err = wgroup.AddTable(wtx, "Person", schema.TableOptions{})
	require.NoError(t, err)

	require.NoError(t, db.Commit(wtx))

	rgroup, err := db.Group(rtx)
	require.NoError(t, err)

	_, err = rgroup.GetTableByName("Person")
	require.Error(t, err)
}
