package collection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/history"
	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/pakdb/pakdb/pkg/txn"
)

func setup(t *testing.T) (*schema.Table, schema.ColKey, schema.ObjKey, *txn.Transaction) {
	t.Helper()

	dir := t.TempDir()
	mgr, err := txn.Open(fs.NewReal(), dir+"/test.pak", history.Null{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	g := schema.NewGroup(mgr)

	wtx, err := mgr.StartWrite()
	require.NoError(t, err)

	tbl, err := g.AddTable(wtx, "owners", schema.TableOptions{})
	require.NoError(t, err)

	col, err := tbl.AddColumn(wtx, "tags", schema.Int)
	require.NoError(t, err)

	key, err := tbl.CreateObject(wtx)
	require.NoError(t, err)

	return tbl, col, key, wtx
}

func TestList_appendGetSort(t *testing.T) {
	tbl, col, obj, wtx := setup(t)
	store := NewStore()

	l, err := NewList(store, tbl, obj, col)
	require.NoError(t, err)

	for _, v := range []int64{30, 10, 20} {
		require.NoError(t, l.Append(wtx, v))
	}

	n, err := l.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	order, err := l.SortedIndices()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 0}, order) // values at those positions: 10,20,30
}

func TestList_distinctIndices(t *testing.T) {
	tbl, col, obj, wtx := setup(t)
	store := NewStore()

	l, err := NewList(store, tbl, obj, col)
	require.NoError(t, err)

	for _, v := range []int64{5, 5, 7, 5, 7} {
		require.NoError(t, l.Append(wtx, v))
	}

	idx, err := l.DistinctIndices()
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, idx)
}

func TestList_staleAfterObjectRemoved(t *testing.T) {
	tbl, col, obj, wtx := setup(t)
	store := NewStore()

	l, err := NewList(store, tbl, obj, col)
	require.NoError(t, err)
	require.NoError(t, l.Append(wtx, 1))

	require.NoError(t, tbl.RemoveObject(wtx, obj))

	_, err = l.Len()
	require.ErrorIs(t, err, ErrStaleAccessor)
}

func TestSet_rejectsDuplicate(t *testing.T) {
	tbl, col, obj, wtx := setup(t)
	store := NewStore()

	s, err := NewSet(store, tbl, obj, col)
	require.NoError(t, err)

	require.NoError(t, s.Add(wtx, 42))

	err = s.Add(wtx, 42)
	require.ErrorIs(t, err, ErrDuplicateElement)

	ok, err := s.Contains(42)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDictionary_setGetDelete(t *testing.T) {
	tbl, col, obj, wtx := setup(t)
	store := NewStore()

	d, err := NewDictionary(store, tbl, obj, col)
	require.NoError(t, err)

	require.NoError(t, d.Set(wtx, "a", 1))
	require.NoError(t, d.Set(wtx, "b", 2))

	v, ok, err := d.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, v)

	require.NoError(t, d.Delete(wtx, "a"))

	_, ok, err = d.Get("a")
	require.NoError(t, err)
	require.False(t, ok)

	keys, err := d.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys)
}
