package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/history"
	"github.com/pakdb/pakdb/pkg/txn"
)

func openTestGroup(t *testing.T) (*Group, *txn.Manager) {
	t.Helper()

	dir := t.TempDir()
	mgr, err := txn.Open(fs.NewReal(), dir+"/test.pak", history.Null{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return NewGroup(mgr), mgr
}

func TestGroup_addAndGetTable(t *testing.T) {
	g, mgr := openTestGroup(t)

	wtx, err := mgr.StartWrite()
	require.NoError(t, err)
	defer wtx.Rollback()

	tbl, err := g.AddTable(wtx, "users", TableOptions{PrimaryKey: PKInt})
	require.NoError(t, err)

	got, err := g.GetTableByName("users")
	require.NoError(t, err)
	require.Equal(t, tbl.Key(), got.Key())

	_, err = g.AddTable(wtx, "users", TableOptions{})
	require.ErrorIs(t, err, ErrTableExists)
}

func TestTable_createGetRemoveObject(t *testing.T) {
	g, mgr := openTestGroup(t)

	wtx, err := mgr.StartWrite()
	require.NoError(t, err)
	defer wtx.Rollback()

	tbl, err := g.AddTable(wtx, "items", TableOptions{})
	require.NoError(t, err)

	nameCol, err := tbl.AddColumn(wtx, "name", String)
	require.NoError(t, err)

	key, err := tbl.CreateObject(wtx)
	require.NoError(t, err)

	obj, err := tbl.GetObject(key)
	require.NoError(t, err)

	require.NoError(t, obj.SetString(wtx, nameCol, "widget"))

	v, err := obj.GetString(nameCol)
	require.NoError(t, err)
	require.Equal(t, "widget", v)

	require.NoError(t, tbl.RemoveObject(wtx, key))

	_, err = tbl.GetObject(key)
	require.ErrorIs(t, err, ErrObjectNotFound)

	_, err = obj.GetString(nameCol)
	require.ErrorIs(t, err, ErrStaleAccessor)
}

func TestTable_strongLinkCascadesOnTargetRemoval(t *testing.T) {
	g, mgr := openTestGroup(t)

	wtx, err := mgr.StartWrite()
	require.NoError(t, err)
	defer wtx.Rollback()

	authors, err := g.AddTable(wtx, "authors", TableOptions{})
	require.NoError(t, err)
	books, err := g.AddTable(wtx, "books", TableOptions{})
	require.NoError(t, err)

	authorCol, err := books.AddLinkColumn(wtx, "author", Link, authors, LinkStrong)
	require.NoError(t, err)

	authorKey, err := authors.CreateObject(wtx)
	require.NoError(t, err)
	bookKey, err := books.CreateObject(wtx)
	require.NoError(t, err)

	bookObj, err := books.GetObject(bookKey)
	require.NoError(t, err)
	require.NoError(t, bookObj.SetLink(wtx, authorCol, authorKey))

	require.NoError(t, authors.RemoveObject(wtx, authorKey))

	_, err = books.GetObject(bookKey)
	require.ErrorIs(t, err, ErrObjectNotFound, "strong link: removing the target removes the source object")
}

func TestTable_weakLinkNullsOnTargetRemoval(t *testing.T) {
	g, mgr := openTestGroup(t)

	wtx, err := mgr.StartWrite()
	require.NoError(t, err)
	defer wtx.Rollback()

	tags, err := g.AddTable(wtx, "tags", TableOptions{})
	require.NoError(t, err)
	posts, err := g.AddTable(wtx, "posts", TableOptions{})
	require.NoError(t, err)

	tagCol, err := posts.AddLinkColumn(wtx, "tag", Link, tags, LinkWeak)
	require.NoError(t, err)

	tagKey, err := tags.CreateObject(wtx)
	require.NoError(t, err)
	postKey, err := posts.CreateObject(wtx)
	require.NoError(t, err)

	postObj, err := posts.GetObject(postKey)
	require.NoError(t, err)
	require.NoError(t, postObj.SetLink(wtx, tagCol, tagKey))

	require.NoError(t, tags.RemoveObject(wtx, tagKey))

	got, err := postObj.GetLink(tagCol)
	require.NoError(t, err)
	require.Equal(t, NullObjKey, got)
}

func TestTable_duplicatePrimaryKeyRejected(t *testing.T) {
	g, mgr := openTestGroup(t)

	wtx, err := mgr.StartWrite()
	require.NoError(t, err)
	defer wtx.Rollback()

	tbl, err := g.AddTable(wtx, "users", TableOptions{PrimaryKey: PKInt})
	require.NoError(t, err)

	_, err = tbl.CreateObjectWithIntPK(wtx, 1)
	require.NoError(t, err)

	_, err = tbl.CreateObjectWithIntPK(wtx, 1)
	require.ErrorIs(t, err, ErrDuplicatePrimaryKey)
}

func TestTable_schemaEditsRequireWriteTransaction(t *testing.T) {
	g, mgr := openTestGroup(t)

	rtx, err := mgr.StartRead(txn.VersionLatest)
	require.NoError(t, err)
	defer rtx.Release()

	_, err = g.AddTable(rtx, "x", TableOptions{})
	require.ErrorIs(t, err, ErrWrongTransactionKind)
}
