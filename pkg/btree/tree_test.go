package btree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnTree_appendAndGet(t *testing.T) {
	tr := New()

	for i := int64(0); i < 1000; i++ {
		require.NoError(t, tr.Append(i))
	}

	require.Equal(t, 1000, tr.Len())
	require.Greater(t, len(tr.Leaves()), 1, "expected leaf splitting past capacity")

	for i := int64(0); i < 1000; i++ {
		v, err := tr.Get(int(i))
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestColumnTree_set_promotesLeafWidth(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Append(1))
	require.NoError(t, tr.Append(2))

	require.NoError(t, tr.Set(0, 1<<40))

	v, err := tr.Get(0)
	require.NoError(t, err)
	require.EqualValues(t, 1<<40, v)

	v, err = tr.Get(1)
	require.NoError(t, err)
	require.EqualValues(t, 2, v)
}

func TestColumnTree_insertMiddle_shiftsTail(t *testing.T) {
	tr := New()
	for _, v := range []int64{10, 20, 30, 40} {
		require.NoError(t, tr.Append(v))
	}

	require.NoError(t, tr.Insert(2, 99))

	want := []int64{10, 20, 99, 30, 40}
	for i, w := range want {
		v, err := tr.Get(i)
		require.NoError(t, err)
		require.Equal(t, w, v)
	}
}

func TestColumnTree_remove_shiftsTail(t *testing.T) {
	tr := New()
	for _, v := range []int64{10, 20, 30, 40} {
		require.NoError(t, tr.Append(v))
	}

	require.NoError(t, tr.Remove(1))

	want := []int64{10, 30, 40}
	require.Equal(t, 3, tr.Len())

	for i, w := range want {
		v, err := tr.Get(i)
		require.NoError(t, err)
		require.Equal(t, w, v)
	}
}

func TestColumnTree_get_outOfRange(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Append(1))

	_, err := tr.Get(5)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestColumnTree_leaves_coverContiguousBase(t *testing.T) {
	tr := New()
	for i := int64(0); i < 600; i++ {
		require.NoError(t, tr.Append(i))
	}

	base := 0
	for _, l := range tr.Leaves() {
		require.Equal(t, base, l.Base)
		base += l.Array.Size
	}

	require.Equal(t, tr.Len(), base)
}
