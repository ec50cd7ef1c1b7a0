package schema

import (
	"fmt"
	"sync"

	"github.com/pakdb/pakdb/pkg/txn"
)

// row tracks per-object liveness. Positions are never reused: a removed
// object keeps its slot (as a tombstone) so outstanding ObjKeys never
// silently resolve to a different, later object.
type row struct {
	alive bool
}

// Table is one table within a Group: an ordered, append-only sequence of
// object slots plus the columns defined on it.
type Table struct {
	mu sync.RWMutex

	group *Group
	key   TableKey
	name  string

	cols     []*Column
	colByKey map[ColKey]*Column
	colByName map[string]ColKey
	nextCol  ColKey

	rows         []row
	pkInt        map[int64]ObjKey
	pkStr        map[string]ObjKey
	hasIntPK     bool
	hasStringPK  bool

	contentVersion uint64
}

func newTable(g *Group, key TableKey, name string, opts TableOptions) *Table {
	t := &Table{
		group:     g,
		key:       key,
		name:      name,
		colByKey:  make(map[ColKey]*Column),
		colByName: make(map[string]ColKey),
	}

	switch opts.PrimaryKey {
	case PKInt:
		t.hasIntPK = true
		t.pkInt = make(map[int64]ObjKey)
	case PKString:
		t.hasStringPK = true
		t.pkStr = make(map[string]ObjKey)
	}

	return t
}

// TableOptions configures a table at creation (add_table's opts).
type TableOptions struct {
	PrimaryKey PKKind
}

// PKKind selects whether (and how) a table's objects carry a primary key.
type PKKind int

const (
	PKNone PKKind = iota
	PKInt
	PKString
)

// Key returns the table's identity within its Group.
func (t *Table) Key() TableKey { return t.key }

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// ContentVersion returns a counter bumped on every object-affecting
// mutation.
func (t *Table) ContentVersion() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.contentVersion
}

func (t *Table) bumpVersion() { t.contentVersion++ }

// AddColumn defines a plain (non-link) column. Valid kinds here are Int,
// Bool, and String.
func (t *Table) AddColumn(tx *txn.Transaction, name string, kind ColumnKind) (ColKey, error) {
	if err := requireWriting(tx); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.colByName[name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrColumnExists, name)
	}

	key := t.nextCol
	t.nextCol++

	var col *Column

	switch kind {
	case String:
		col = newStringColumn(key, name)
	default:
		col = newIntColumn(key, name, kind)
	}

	for range t.rows {
		_ = col.grow()
	}

	t.cols = append(t.cols, col)
	t.colByKey[key] = col
	t.colByName[name] = key

	return key, nil
}

// AddLinkColumn defines a Link (or Embedded) column pointing at target,
// creating target's hidden backlink column atomically.
func (t *Table) AddLinkColumn(tx *txn.Transaction, name string, kind ColumnKind, target *Table, policy LinkPolicy) (ColKey, error) {
	if err := requireWriting(tx); err != nil {
		return 0, err
	}

	t.mu.Lock()

	if _, exists := t.colByName[name]; exists {
		t.mu.Unlock()
		return 0, fmt.Errorf("%w: %q", ErrColumnExists, name)
	}

	key := t.nextCol
	t.nextCol++

	col := newLinkColumn(key, name, kind, target.key, policy)
	for range t.rows {
		_ = col.grow()
	}

	t.cols = append(t.cols, col)
	t.colByKey[key] = col
	t.colByName[name] = key
	t.mu.Unlock()

	target.addBacklinkColumn(t, key)

	return key, nil
}

func (t *Table) addBacklinkColumn(src *Table, srcCol ColKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := fmt.Sprintf("$backlink:%s.%d", src.name, srcCol)
	key := t.nextCol
	t.nextCol++

	col := newBacklinkColumn(key, name, src.key, srcCol)
	t.cols = append(t.cols, col)
	t.colByKey[key] = col
	t.colByName[name] = key
}

// backlinkColumnFor finds the hidden backlink column created for a given
// source table/column pair.
func (t *Table) backlinkColumnFor(srcTable TableKey, srcCol ColKey) *Column {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, c := range t.cols {
		if c.Kind == Backlink && c.backlinkOfTbl == srcTable && c.backlinkOfCol == srcCol {
			return c
		}
	}

	return nil
}

// Column resolves a column by key, including hidden backlink columns.
func (t *Table) Column(key ColKey) (*Column, error) {
	return t.column(key)
}

func (t *Table) column(key ColKey) (*Column, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.colByKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %d", ErrColumnNotFound, key)
	}

	return c, nil
}

// ColumnByName resolves a column by its declared name.
func (t *Table) ColumnByName(name string) (*Column, error) {
	t.mu.RLock()
	key, ok := t.colByName[name]
	t.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}

	return t.column(key)
}

// Columns returns the table's columns in declaration order, including
// hidden backlink columns.
func (t *Table) Columns() []*Column {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Column, len(t.cols))
	copy(out, t.cols)

	return out
}

// RowCount returns the number of slots, including tombstoned ones. This is
// the bound the query engine scans against.
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.rows)
}

// IsAlive reports whether the row at position pos is live (not tombstoned).
func (t *Table) IsAlive(pos int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if pos < 0 || pos >= len(t.rows) {
		return false
	}

	return t.rows[pos].alive
}

// CreateObject appends a new row with no primary key and returns its key.
func (t *Table) CreateObject(tx *txn.Transaction) (ObjKey, error) {
	return t.createObject(tx, nil)
}

// CreateObjectWithIntPK appends a new row keyed by an integer primary key.
func (t *Table) CreateObjectWithIntPK(tx *txn.Transaction, pk int64) (ObjKey, error) {
	return t.createObject(tx, pk)
}

// CreateObjectWithStringPK appends a new row keyed by a string primary key.
func (t *Table) CreateObjectWithStringPK(tx *txn.Transaction, pk string) (ObjKey, error) {
	return t.createObject(tx, pk)
}

func (t *Table) createObject(tx *txn.Transaction, pk any) (ObjKey, error) {
	if err := requireWriting(tx); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch v := pk.(type) {
	case int64:
		if !t.hasIntPK {
			return 0, fmt.Errorf("schema: table %q has no integer primary key", t.name)
		}

		if _, dup := t.pkInt[v]; dup {
			return 0, fmt.Errorf("%w: %d", ErrDuplicatePrimaryKey, v)
		}
	case string:
		if !t.hasStringPK {
			return 0, fmt.Errorf("schema: table %q has no string primary key", t.name)
		}

		if _, dup := t.pkStr[v]; dup {
			return 0, fmt.Errorf("%w: %q", ErrDuplicatePrimaryKey, v)
		}
	}

	pos := len(t.rows)
	t.rows = append(t.rows, row{alive: true})

	for _, c := range t.cols {
		_ = c.grow()
	}

	key := ObjKey(pos + 1)

	switch v := pk.(type) {
	case int64:
		t.pkInt[v] = key
	case string:
		t.pkStr[v] = key
	}

	t.bumpVersion()

	return key, nil
}

func posOf(key ObjKey) int { return int(key) - 1 }

// GetObject returns a handle to key if it is a live row.
func (t *Table) GetObject(key ObjKey) (*Object, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos := posOf(key)
	if pos < 0 || pos >= len(t.rows) || !t.rows[pos].alive {
		return nil, fmt.Errorf("%w: key %d", ErrObjectNotFound, key)
	}

	return &Object{table: t, key: key, boundVersion: t.contentVersion}, nil
}

// RemoveObject tombstones key, cascading to owned embedded objects and
// applying each incoming link's policy, per §4.4.
func (t *Table) RemoveObject(tx *txn.Transaction, key ObjKey) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	return t.removeObject(tx, key)
}

func (t *Table) removeObject(tx *txn.Transaction, key ObjKey) error {
	t.mu.Lock()

	pos := posOf(key)
	if pos < 0 || pos >= len(t.rows) || !t.rows[pos].alive {
		t.mu.Unlock()
		return fmt.Errorf("%w: key %d", ErrObjectNotFound, key)
	}

	t.rows[pos].alive = false

	// Embedded (owned) children are removed with their owner.
	var embeddedTargets []struct {
		tbl TableKey
		obj ObjKey
	}

	// Incoming references recorded by this table's hidden backlink columns
	// must be resolved per the originating link's policy.
	type incoming struct {
		col *Column
		src backlinkSource
	}

	var toCascadeRemove []incoming
	var toNull []incoming

	for _, c := range t.cols {
		if c.Kind == Embedded {
			if v, _ := c.getInt(pos); v != 0 {
				embeddedTargets = append(embeddedTargets, struct {
					tbl TableKey
					obj ObjKey
				}{c.TargetTable, ObjKey(v)})
			}
		}

		if c.Kind == Backlink {
			for _, src := range c.back[pos] {
				// src.table may be t itself (a self-referencing link column);
				// t.mu is already held exclusively here, so look the column
				// up directly instead of calling the locking accessor.
				var srcCol *Column
				if src.table == t {
					srcCol = t.colByKey[src.col]
				} else {
					var err error
					srcCol, err = src.table.column(src.col)
					if err != nil {
						continue
					}
				}

				switch srcCol.Policy {
				case LinkStrong:
					toCascadeRemove = append(toCascadeRemove, incoming{c, src})
				case LinkWeak:
					toNull = append(toNull, incoming{c, src})
				case LinkUnresolved:
					// Tombstone stays; source cell keeps pointing at it.
				}
			}
		}
	}

	t.bumpVersion()
	t.mu.Unlock()

	for _, target := range embeddedTargets {
		tt := t.group.tableByKey(target.tbl)
		if tt != nil {
			_ = tt.removeObject(tx, target.obj)
		}
	}

	for _, in := range toNull {
		_ = in.src.table.setLink(tx, in.src.obj, in.src.col, NullObjKey)
	}

	for _, in := range toCascadeRemove {
		_ = in.src.table.removeObject(tx, in.src.obj)
	}

	return nil
}

func requireWriting(tx *txn.Transaction) error {
	if tx == nil || tx.State() != txn.Writing {
		return ErrWrongTransactionKind
	}

	return nil
}
