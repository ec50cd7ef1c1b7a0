// Package query implements the predicate-tree evaluator (§4.6): compiled
// Compare/BooleanNode trees evaluated against one schema.Table, producing
// matching ObjKeys or aggregate reductions, via the fastest kernel pkg/array
// exposes for the scanned leaf's bit width.
package query

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pakdb/pakdb/pkg/array"
	"github.com/pakdb/pakdb/pkg/btree"
	"github.com/pakdb/pakdb/pkg/schema"
)

// Query binds a (possibly nil, meaning "match everything") predicate tree
// to one table.
type Query struct {
	table *schema.Table
	root  Node
}

// On starts a query against table, matching every live row until Where
// narrows it - the table.where() entry point from §4.4.
func On(table *schema.Table) *Query {
	return &Query{table: table}
}

// Where attaches (or replaces) the query's predicate tree.
func (q *Query) Where(root Node) *Query {
	q.root = root
	return q
}

// matchFunc is the driver's match callback: state.match(global_index) from
// §4.6. Returning false terminates the scan at that position.
type matchFunc func(pos int) bool

// scan is the single code path backing FindFirst/FindAll/Count/Sum/Min/Max:
// it walks live rows in order, calling match for each one the predicate
// accepts, stopping early if match returns false.
func (q *Query) scan(match matchFunc) error {
	if cmp, ok := q.root.(*CompareNode); ok {
		if col, cond, v, ok := cmp.asSimpleColumnCompare(); ok {
			return q.scanSimpleCompare(col, cond, v, match)
		}
	}

	n := q.table.RowCount()

	for pos := 0; pos < n; pos++ {
		if !q.table.IsAlive(pos) {
			continue
		}

		if q.root != nil {
			ok, err := q.root.eval(q.table, pos)
			if err != nil {
				return err
			}

			if !ok {
				continue
			}
		}

		if !match(pos) {
			return nil
		}
	}

	return nil
}

// scanSimpleCompare is the optimizer-hook path (§4.6's "Constant <op>
// Column" builder shortcut): a direct engine node that walks the column's
// B+tree leaves, consulting width-derived bounds before touching each leaf
// and dispatching to the bit-hack/SIMD-abstraction kernel that fits the
// leaf's width.
func (q *Query) scanSimpleCompare(col schema.ColKey, cond Cond, v int64, match matchFunc) error {
	c, err := q.table.Column(col)
	if err != nil {
		return err
	}

	tree := c.Tree()
	if tree == nil {
		return ErrNotIntColumn
	}

	for _, leaf := range tree.Leaves() {
		lbound, ubound := array.Bounds(leaf.Array.Width)

		if !cond.canMatch(v, lbound, ubound) {
			continue // Cond.can_match false: skip the leaf entirely.
		}

		bulk := cond.willMatch(v, lbound, ubound)

		cont, err := scanLeaf(leaf, cond, v, bulk, q.table, match)
		if err != nil {
			return err
		}

		if !cont {
			return nil
		}
	}

	return nil
}

// scanLeaf evaluates one leaf, returning false if the caller's match
// callback asked to stop.
func scanLeaf(leaf *btree.Leaf, cond Cond, v int64, bulk bool, t *schema.Table, match matchFunc) (bool, error) {
	w := leaf.Array.Width

	var chunk [8]int64

	for base := 0; base < leaf.Array.Size; base += 8 {
		// The packed word at base covers 64/w lanes; the fast-reject check
		// below only holds when that span covers at least our 8-element
		// GetChunk window (w<=8), otherwise a miss in the covered sub-span
		// doesn't rule out a match in the uncovered tail of the chunk.
		if !bulk && cond == Eq && w >= 1 && w <= 8 {
			word, ok := rawWord(leaf.Array, base)
			if ok && !array.HasEqualByte8(word, v, w) {
				continue // whole word has no matching lane, skip it
			}
		}

		leaf.Array.GetChunk(base, &chunk)

		limit := min(8, leaf.Array.Size-base)

		for i := 0; i < limit; i++ {
			pos := leaf.Base + base + i

			matched := bulk || cond.matchScalar(chunk[i], v)
			if matched && !t.IsAlive(pos) {
				continue
			}

			if matched {
				if !match(pos) {
					return false, nil
				}
			}
		}
	}

	return true, nil
}

// rawWord reads up to one 64-bit packed word of raw lanes starting at
// element base, for the bit-hack fast-reject check. Only valid for widths
// that divide 64 evenly (1,2,4,8,16,32), which is every width this path is
// called for.
func rawWord(a *array.Array, base int) (uint64, bool) {
	if a.Width == 0 || a.Width == 64 {
		return 0, false
	}

	lanes := 64 / a.Width
	if base+lanes > a.Cap {
		return 0, false
	}

	byteOff := base * a.Width / 8
	if byteOff+8 > len(a.Buf) {
		return 0, false
	}

	var word uint64
	for i := 0; i < 8; i++ {
		word |= uint64(a.Buf[byteOff+i]) << uint(8*i)
	}

	return word, true
}

// FindFirst returns the first matching object key, if any.
func (q *Query) FindFirst() (schema.ObjKey, bool, error) {
	var found schema.ObjKey

	ok := false

	err := q.scan(func(pos int) bool {
		found = schema.ObjKey(pos + 1)
		ok = true

		return false
	})

	return found, ok, err
}

// FindAll collects every matching object key, honoring limit (0 = no
// limit), per §4.6's "limit-bounded find_all(n)".
func (q *Query) FindAll(limit int) ([]schema.ObjKey, error) {
	var out []schema.ObjKey

	err := q.scan(func(pos int) bool {
		out = append(out, schema.ObjKey(pos+1))
		return limit == 0 || len(out) < limit
	})

	return out, err
}

// FindAllBitmap is FindAll's bulk-accumulation form, returning a
// RoaringBitmap of matching row positions instead of a Go slice - useful
// when the result feeds a further set operation (union/intersect with
// another query) rather than direct iteration.
func (q *Query) FindAllBitmap() (*roaring.Bitmap, error) {
	bm := roaring.New()

	err := q.scan(func(pos int) bool {
		bm.Add(uint32(pos))
		return true
	})

	return bm, err
}

// Count returns the number of matching rows.
func (q *Query) Count() (int, error) {
	n := 0

	err := q.scan(func(pos int) bool {
		n++
		return true
	})

	return n, err
}

// Sum accumulates col over matching rows.
func (q *Query) Sum(col schema.ColKey) (int64, error) {
	var sum int64

	err := q.scan(func(pos int) bool {
		v, e := readCol(q.table, col, pos)
		if e == nil {
			sum += v
		}

		return true
	})

	return sum, err
}

// Min returns the minimum value of col over matching rows.
func (q *Query) Min(col schema.ColKey) (int64, bool, error) {
	min := int64(math.MaxInt64)
	found := false

	err := q.scan(func(pos int) bool {
		v, e := readCol(q.table, col, pos)
		if e == nil {
			found = true
			if v < min {
				min = v
			}
		}

		return true
	})

	return min, found, err
}

// Max returns the maximum value of col over matching rows.
func (q *Query) Max(col schema.ColKey) (int64, bool, error) {
	max := int64(math.MinInt64)
	found := false

	err := q.scan(func(pos int) bool {
		v, e := readCol(q.table, col, pos)
		if e == nil {
			found = true
			if v > max {
				max = v
			}
		}

		return true
	})

	return max, found, err
}

func readCol(t *schema.Table, col schema.ColKey, pos int) (int64, error) {
	c, err := t.Column(col)
	if err != nil {
		return 0, err
	}

	tree := c.Tree()
	if tree == nil {
		return 0, ErrNotIntColumn
	}

	return tree.Get(pos)
}
