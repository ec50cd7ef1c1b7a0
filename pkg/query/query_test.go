package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pakdb/pakdb/pkg/fs"
	"github.com/pakdb/pakdb/pkg/history"
	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/pakdb/pakdb/pkg/txn"
)

func setup(t *testing.T) (*schema.Table, schema.ColKey, *txn.Transaction) {
	t.Helper()

	dir := t.TempDir()
	mgr, err := txn.Open(fs.NewReal(), dir+"/test.pak", history.Null{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	g := schema.NewGroup(mgr)

	wtx, err := mgr.StartWrite()
	require.NoError(t, err)

	tbl, err := g.AddTable(wtx, "nums", schema.TableOptions{})
	require.NoError(t, err)

	col, err := tbl.AddColumn(wtx, "n", schema.Int)
	require.NoError(t, err)

	for i := int64(0); i < 2000; i++ {
		key, err := tbl.CreateObject(wtx)
		require.NoError(t, err)

		obj, err := tbl.GetObject(key)
		require.NoError(t, err)
		require.NoError(t, obj.SetInt(wtx, col, i))
	}

	return tbl, col, wtx
}

func TestQuery_equalityFindsExactRow(t *testing.T) {
	tbl, col, _ := setup(t)

	q := On(tbl).Where(Compare(Eq, Column(col), Value(1234)))

	key, ok, err := q.FindFirst()
	require.NoError(t, err)
	require.True(t, ok)

	obj, err := tbl.GetObject(key)
	require.NoError(t, err)
	v, err := obj.GetInt(col)
	require.NoError(t, err)
	require.EqualValues(t, 1234, v)
}

func TestQuery_rangeFindAll_countsMatch(t *testing.T) {
	tbl, col, _ := setup(t)

	q := On(tbl).Where(Compare(Less, Column(col), Value(100)))

	keys, err := q.FindAll(0)
	require.NoError(t, err)
	require.Len(t, keys, 100)

	cnt, err := q.Count()
	require.NoError(t, err)
	require.Equal(t, 100, cnt)
}

func TestQuery_sumMinMax(t *testing.T) {
	tbl, col, _ := setup(t)

	q := On(tbl).Where(Compare(Less, Column(col), Value(10)))

	sum, err := q.Sum(col)
	require.NoError(t, err)
	require.EqualValues(t, 45, sum) // 0+1+...+9

	mn, ok, err := q.Min(col)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, mn)

	mx, ok, err := q.Max(col)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 9, mx)
}

func TestQuery_findAll_respectsLimit(t *testing.T) {
	tbl, col, _ := setup(t)

	q := On(tbl).Where(Compare(GreaterEq, Column(col), Value(0)))

	keys, err := q.FindAll(5)
	require.NoError(t, err)
	require.Len(t, keys, 5)
}

func TestQuery_booleanAnd(t *testing.T) {
	tbl, col, _ := setup(t)

	q := On(tbl).Where(And(
		Compare(GreaterEq, Column(col), Value(10)),
		Compare(Less, Column(col), Value(20)),
	))

	cnt, err := q.Count()
	require.NoError(t, err)
	require.Equal(t, 10, cnt)
}

func TestQuery_tombstonedRowsExcluded(t *testing.T) {
	tbl, col, wtx := setup(t)

	q := On(tbl).Where(Compare(Eq, Column(col), Value(5)))

	require.NoError(t, tbl.RemoveObject(wtx, schema.ObjKey(6))) // value 5 is at position 5, key 6

	cnt, err := q.Count()
	require.NoError(t, err)
	require.Equal(t, 0, cnt)
}
