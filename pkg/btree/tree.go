// Package btree implements the B+tree of packed arrays that backs every
// integer column (§4.1/§4.6): a table's column is not one giant array but
// an ordered chain of bounded-capacity array.Array leaves, so the query
// engine can evaluate each leaf independently with the kernel matching that
// leaf's own bit width. Insert and Remove in the middle of a column rebuild
// every element from that position onward (see truncateFrom).
package btree

import (
	"fmt"

	"github.com/pakdb/pakdb/pkg/array"
)

// leafCapacity bounds how many elements a single leaf holds before a split.
// Kept small enough to exercise splitting in tests, large enough that a
// realistic column doesn't fragment into hundreds of leaves.
const leafCapacity = 256

// Leaf pairs a packed array with the row position of its first element,
// letting callers (the query engine in particular) map a match found
// within the leaf back to a global row index.
type Leaf struct {
	Base  int // global position of element 0 in this leaf
	Array *array.Array
}

// ColumnTree is an ordered sequence of Leaf nodes covering positions
// [0, Len()) contiguously. Width promotion happens per leaf: two leaves of
// the same logical column may have different widths, exactly as the source
// allows each Array node in a column's B+tree to pick its own width.
type ColumnTree struct {
	leaves []*Leaf
}

// New returns an empty ColumnTree.
func New() *ColumnTree {
	return &ColumnTree{}
}

// Len returns the total number of elements across all leaves.
func (t *ColumnTree) Len() int {
	n := 0
	for _, l := range t.leaves {
		n += l.Array.Size
	}

	return n
}

// Leaves returns the tree's leaves in position order, for the query engine
// to scan.
func (t *ColumnTree) Leaves() []*Leaf {
	return t.leaves
}

func (t *ColumnTree) locate(pos int) (leafIdx int, offsetInLeaf int, ok bool) {
	base := 0

	for i, l := range t.leaves {
		if pos < base+l.Array.Size {
			return i, pos - base, true
		}

		base += l.Array.Size
	}

	return 0, 0, false
}

// Get reads the element at global position pos.
func (t *ColumnTree) Get(pos int) (int64, error) {
	li, off, ok := t.locate(pos)
	if !ok {
		return 0, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, pos, t.Len())
	}

	return t.leaves[li].Array.Get(off)
}

// Set writes v at global position pos, promoting that leaf's width if
// needed.
func (t *ColumnTree) Set(pos int, v int64) error {
	li, off, ok := t.locate(pos)
	if !ok {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, pos, t.Len())
	}

	leaf := t.leaves[li]

	needed := array.MinWidth(v)
	if needed > leaf.Array.Width {
		if err := leaf.Array.PromoteWidth(needed); err != nil {
			return err
		}
	}

	return leaf.Array.Set(off, v)
}

// Append adds v to the end of the column, splitting the last leaf if it is
// at capacity.
func (t *ColumnTree) Append(v int64) error {
	if len(t.leaves) == 0 {
		t.leaves = append(t.leaves, t.newLeaf(0))
	}

	last := t.leaves[len(t.leaves)-1]
	if last.Array.Size >= leafCapacity {
		newBase := last.Base + last.Array.Size
		last = t.newLeaf(newBase)
		t.leaves = append(t.leaves, last)
	}

	return last.Array.Append(v)
}

func (t *ColumnTree) newLeaf(base int) *Leaf {
	a, _ := array.New(0, leafCapacity)
	return &Leaf{Base: base, Array: a}
}

// Insert places v at global position pos, shifting every later element one
// slot to the right. pos == Len() is equivalent to Append.
func (t *ColumnTree) Insert(pos int, v int64) error {
	n := t.Len()
	if pos < 0 || pos > n {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, pos, n)
	}

	if pos == n {
		return t.Append(v)
	}

	tail := make([]int64, n-pos)
	for i := pos; i < n; i++ {
		tail[i-pos], _ = t.Get(i)
	}

	if err := t.truncateFrom(pos); err != nil {
		return err
	}

	if err := t.Append(v); err != nil {
		return err
	}

	for _, x := range tail {
		if err := t.Append(x); err != nil {
			return err
		}
	}

	return nil
}

// Remove deletes the element at global position pos, shifting later
// elements left by one.
func (t *ColumnTree) Remove(pos int) error {
	n := t.Len()
	if pos < 0 || pos >= n {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, pos, n)
	}

	tail := make([]int64, 0, n-pos-1)
	for i := pos + 1; i < n; i++ {
		v, _ := t.Get(i)
		tail = append(tail, v)
	}

	if err := t.truncateFrom(pos); err != nil {
		return err
	}

	for _, x := range tail {
		if err := t.Append(x); err != nil {
			return err
		}
	}

	return nil
}

// truncateFrom drops every element at position >= pos, used internally by
// Insert/Remove's shift-and-rebuild (Insert/Delete in the middle of a
// packed array column is inherently O(n) regardless of B+tree depth once
// widths can change, so this keeps the implementation simple rather than
// pretending otherwise).
func (t *ColumnTree) truncateFrom(pos int) error {
	li, off, ok := t.locate(pos)
	if !ok {
		if pos == t.Len() {
			return nil
		}

		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, pos)
	}

	leaf := t.leaves[li]
	leaf.Array.Size = off
	t.leaves = t.leaves[:li+1]

	return nil
}
