package array

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArray_GetSet_roundTrip(t *testing.T) {
	for _, w := range []int{1, 2, 4, 8, 16, 32, 64} {
		t.Run("", func(t *testing.T) {
			a, err := New(w, 8)
			require.NoError(t, err)
			a.Size = 8

			_, hi := Bounds(w)

			for i := range 8 {
				v := hi
				if i%2 == 0 {
					v = 0
				}

				require.NoError(t, a.Set(i, v))
			}

			for i := range 8 {
				want := hi
				if i%2 == 0 {
					want = 0
				}

				got, err := a.Get(i)
				require.NoError(t, err)
				require.Equal(t, want, got)
			}
		})
	}
}

func TestArray_Set_widthOverflow(t *testing.T) {
	a, err := New(4, 4)
	require.NoError(t, err)
	a.Size = 4

	err = a.Set(0, 16)
	require.ErrorIs(t, err, ErrWidthOverflow)
}

func TestArray_PromoteWidth_preservesValues(t *testing.T) {
	a, err := New(2, 8)
	require.NoError(t, err)
	a.Size = 8

	vals := []int64{0, 1, 2, 3, 0, 1, 2, 3}
	for i, v := range vals {
		require.NoError(t, a.Set(i, v))
	}

	require.NoError(t, a.PromoteWidth(8))

	for i, want := range vals {
		got, err := a.Get(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestArray_PromoteWidth_rejectsRegression(t *testing.T) {
	a, err := New(8, 4)
	require.NoError(t, err)

	err = a.PromoteWidth(2)
	require.ErrorIs(t, err, ErrWidthRegression)
}

func TestArray_Append_promotesAsNeeded(t *testing.T) {
	a, err := New(2, 0)
	require.NoError(t, err)

	vals := []int64{0, 1, 2, 3, 200}
	for _, v := range vals {
		require.NoError(t, a.Append(v))
	}

	require.Equal(t, 16, a.Width)

	for i, want := range vals {
		got, err := a.Get(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestMinWidth(t *testing.T) {
	require.Equal(t, 0, MinWidth(0))
	require.Equal(t, 2, MinWidth(3))
	require.Equal(t, 8, MinWidth(100))
	require.Equal(t, 8, MinWidth(-100))
	require.Equal(t, 64, MinWidth(1<<40))
}

func TestCascadeZeroEq_matchesScalar(t *testing.T) {
	for _, w := range []int{1, 2, 4, 8, 16, 32} {
		lanes := 64 / w
		mask := uint64(1)<<uint(w) - 1

		for target := int64(0); target <= int64(mask); target++ {
			var chunk uint64
			wantAny := false

			for i := range lanes {
				lane := uint64(i) & mask
				if int64(lane) == target {
					wantAny = true
				}

				chunk |= lane << uint(i*w)
			}

			got := HasEqualByte8(chunk, target, w)
			require.Equal(t, wantAny, got, "width %d target %d", w, target)
		}
	}
}
