package collection

import (
	"fmt"
	"sort"

	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/pakdb/pakdb/pkg/txn"
)

// Dictionary is a string-keyed, int64-valued collection bound to one
// (ObjKey, ColKey) cell, per §4.5.
type Dictionary struct {
	store *Store
	table *schema.Table
	obj   schema.ObjKey
	col   schema.ColKey
	k     key
}

// NewDictionary binds a Dictionary accessor to (obj, col).
func NewDictionary(store *Store, table *schema.Table, obj schema.ObjKey, col schema.ColKey) (*Dictionary, error) {
	if _, err := table.GetObject(obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleAccessor, err)
	}

	return &Dictionary{store: store, table: table, obj: obj, col: col, k: cellKey(table, obj, col)}, nil
}

func (d *Dictionary) checkLive() error {
	if _, err := d.table.GetObject(d.obj); err != nil {
		return fmt.Errorf("%w: %v", ErrStaleAccessor, err)
	}

	return nil
}

// Get reads the value at key, if present.
func (d *Dictionary) Get(k string) (int64, bool, error) {
	if err := d.checkLive(); err != nil {
		return 0, false, err
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	m := d.store.dicts[d.k]
	v, ok := m[k]

	return v, ok, nil
}

// Set writes key -> v, creating the entry if absent.
func (d *Dictionary) Set(tx *txn.Transaction, k string, v int64) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := d.checkLive(); err != nil {
		return err
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	m := d.store.dicts[d.k]
	if m == nil {
		m = make(map[string]int64)
		d.store.dicts[d.k] = m
	}

	m[k] = v

	return nil
}

// Delete removes key, returning ErrKeyNotFound if it was absent.
func (d *Dictionary) Delete(tx *txn.Transaction, k string) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := d.checkLive(); err != nil {
		return err
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	m := d.store.dicts[d.k]
	if _, ok := m[k]; !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, k)
	}

	delete(m, k)

	return nil
}

// Keys returns the dictionary's keys in sorted order (insertion order isn't
// preserved by a Go map, so callers that need a stable iteration order get
// a deterministic one instead).
func (d *Dictionary) Keys() ([]string, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	m := d.store.dicts[d.k]
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys, nil
}
