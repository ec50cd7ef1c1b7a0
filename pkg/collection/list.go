package collection

import (
	"fmt"
	"sort"

	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/pakdb/pakdb/pkg/txn"
)

// List is an ordered, position-indexed collection of int64 values (or
// ObjKeys, when used to store links) bound to one (ObjKey, ColKey) cell.
type List struct {
	store *Store
	table *schema.Table
	obj   schema.ObjKey
	col   schema.ColKey
	k     key

	// linkTarget is set when this list's elements are ObjKeys into another
	// table, enabling tombstone filtering in SortedIndices/DistinctIndices.
	linkTarget *schema.Table
}

// NewList binds a List accessor to (obj, col), failing if obj is not
// currently live.
func NewList(store *Store, table *schema.Table, obj schema.ObjKey, col schema.ColKey) (*List, error) {
	if _, err := table.GetObject(obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleAccessor, err)
	}

	return &List{store: store, table: table, obj: obj, col: col, k: cellKey(table, obj, col)}, nil
}

// WithLinkTarget marks this list's elements as ObjKeys into target, so
// SortedIndices/DistinctIndices filter out elements whose target row has
// since been tombstoned.
func (l *List) WithLinkTarget(target *schema.Table) *List {
	l.linkTarget = target
	return l
}

func (l *List) checkLive() error {
	if _, err := l.table.GetObject(l.obj); err != nil {
		return fmt.Errorf("%w: %v", ErrStaleAccessor, err)
	}

	return nil
}

func requireWriting(tx *txn.Transaction) error {
	if tx == nil || tx.State() != txn.Writing {
		return fmt.Errorf("collection: mutation requires a write transaction")
	}

	return nil
}

// Len returns the number of elements currently in the list.
func (l *List) Len() (int, error) {
	if err := l.checkLive(); err != nil {
		return 0, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	return len(l.store.lists[l.k]), nil
}

// Get reads the element at position i.
func (l *List) Get(i int) (int64, error) {
	if err := l.checkLive(); err != nil {
		return 0, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	s := l.store.lists[l.k]
	if i < 0 || i >= len(s) {
		return 0, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(s))
	}

	return s[i], nil
}

// Append adds v to the end of the list.
func (l *List) Append(tx *txn.Transaction, v int64) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := l.checkLive(); err != nil {
		return err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	l.store.lists[l.k] = append(l.store.lists[l.k], v)

	return nil
}

// Set overwrites the element at position i.
func (l *List) Set(tx *txn.Transaction, i int, v int64) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := l.checkLive(); err != nil {
		return err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	s := l.store.lists[l.k]
	if i < 0 || i >= len(s) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(s))
	}

	s[i] = v

	return nil
}

// RemoveAt deletes the element at position i, shifting later elements left.
func (l *List) RemoveAt(tx *txn.Transaction, i int) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := l.checkLive(); err != nil {
		return err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	s := l.store.lists[l.k]
	if i < 0 || i >= len(s) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(s))
	}

	l.store.lists[l.k] = append(s[:i], s[i+1:]...)

	return nil
}

// aliveIndices returns the list's current values along with their original
// positions, dropping any whose linked target row has been tombstoned.
func (l *List) aliveIndices() ([]int, []int64, error) {
	if err := l.checkLive(); err != nil {
		return nil, nil, err
	}

	l.store.mu.Lock()
	s := append([]int64(nil), l.store.lists[l.k]...)
	l.store.mu.Unlock()

	idx := make([]int, 0, len(s))
	vals := make([]int64, 0, len(s))

	for i, v := range s {
		if l.linkTarget != nil && !l.linkTarget.IsAlive(int(v)-1) {
			continue // tombstoned target: hidden from sort/distinct results
		}

		idx = append(idx, i)
		vals = append(vals, v)
	}

	return idx, vals, nil
}

// SortedIndices returns original list positions in ascending value order,
// ties broken by insertion index (stable sort preserves that automatically).
func (l *List) SortedIndices() ([]int, error) {
	idx, vals, err := l.aliveIndices()
	if err != nil {
		return nil, err
	}

	order := make([]int, len(idx))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })

	out := make([]int, len(order))
	for i, o := range order {
		out[i] = idx[o]
	}

	return out, nil
}

// DistinctIndices returns the original list position of each value's first
// occurrence, in original list order.
func (l *List) DistinctIndices() ([]int, error) {
	idx, vals, err := l.aliveIndices()
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(vals))

	out := make([]int, 0, len(vals))
	for i, v := range vals {
		if _, dup := seen[v]; dup {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, idx[i])
	}

	return out, nil
}
