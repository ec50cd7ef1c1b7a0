package schema

import "github.com/pakdb/pakdb/pkg/btree"

// ColumnKind identifies the storage discipline and semantics of a column.
type ColumnKind int

const (
	// Int is a plain signed-integer column, stored in a btree.ColumnTree
	// so its leaves can be scanned by the packed-array query kernels.
	Int ColumnKind = iota
	// Bool is stored exactly like Int, restricted to 0/1.
	Bool
	// String is an unpacked, position-indexed slice of Go strings. String
	// predicates bypass the integer kernels entirely (spec's fallback path).
	String
	// Link is a strong, weak, or unresolved reference to a row in another
	// table, stored as an ObjKey in a btree.ColumnTree (0 = null).
	Link
	// Embedded is a strong-ownership composition link: removing the owner
	// removes the embedded object too.
	Embedded
	// Backlink is a hidden, auto-generated column created on a Link
	// column's target table; it is never added directly via AddColumn.
	Backlink
)

// LinkPolicy governs what happens to a Link column's source row when its
// target is removed.
type LinkPolicy int

const (
	// LinkStrong: removing the target removes the source object too.
	LinkStrong LinkPolicy = iota
	// LinkWeak: removing the target nulls the source cell.
	LinkWeak
	// LinkUnresolved: the target becomes a sync tombstone; the source cell
	// keeps pointing at it, and virtual indices hide the tombstoned row.
	LinkUnresolved
)

// backlinkSource identifies one incoming reference recorded against a
// target row by a hidden Backlink column.
type backlinkSource struct {
	table *Table
	col   ColKey
	obj   ObjKey
}

// Column is one table column. Only one of tree/strs is populated,
// depending on Kind.
type Column struct {
	Key  ColKey
	Name string
	Kind ColumnKind

	TargetTable TableKey   // Link/Embedded/Backlink only
	Policy      LinkPolicy // Link only

	backlinkOfCol ColKey // Backlink only: the originating Link column's key
	backlinkOfTbl TableKey

	tree *btree.ColumnTree    // Int/Bool/Link/Embedded storage
	strs []string             // String storage, position-indexed
	back map[int][]backlinkSource // Backlink only: row position -> incoming refs
}

// Tree exposes the underlying packed-array B+tree for Int/Bool/Link/
// Embedded columns, for pkg/query's leaf-accelerated scan. Returns nil for
// String columns.
func (c *Column) Tree() *btree.ColumnTree { return c.tree }

func newIntColumn(key ColKey, name string, kind ColumnKind) *Column {
	return &Column{Key: key, Name: name, Kind: kind, tree: btree.New()}
}

func newStringColumn(key ColKey, name string) *Column {
	return &Column{Key: key, Name: name, Kind: String}
}

func newLinkColumn(key ColKey, name string, kind ColumnKind, target TableKey, policy LinkPolicy) *Column {
	return &Column{Key: key, Name: name, Kind: kind, TargetTable: target, Policy: policy, tree: btree.New()}
}

func newBacklinkColumn(key ColKey, name string, srcTable TableKey, srcCol ColKey) *Column {
	return &Column{
		Key: key, Name: name, Kind: Backlink,
		backlinkOfTbl: srcTable, backlinkOfCol: srcCol,
		back: make(map[int][]backlinkSource),
	}
}

// grow appends a zero-value (0, "", or null link) for a newly created row at
// the next position, keeping every column's length equal to the table's row
// count including tombstoned rows. Backlink columns keep a position-keyed
// map and have no slot to append.
func (c *Column) grow() error {
	switch c.Kind {
	case String:
		c.strs = append(c.strs, "")
		return nil
	case Backlink:
		return nil
	default:
		return c.tree.Append(0)
	}
}

func (c *Column) getInt(pos int) (int64, error) {
	return c.tree.Get(pos)
}

func (c *Column) setInt(pos int, v int64) error {
	return c.tree.Set(pos, v)
}

func (c *Column) getString(pos int) string {
	return c.strs[pos]
}

func (c *Column) setString(pos int, v string) {
	c.strs[pos] = v
}

func (c *Column) addBacklink(pos int, src backlinkSource) {
	c.back[pos] = append(c.back[pos], src)
}

// removeBacklink drops one recorded incoming reference, matching by table
// identity, column key, and source object key.
func (c *Column) removeBacklink(pos int, srcTable *Table, srcCol ColKey, srcObj ObjKey) {
	refs := c.back[pos]
	for i, r := range refs {
		if r.table == srcTable && r.col == srcCol && r.obj == srcObj {
			c.back[pos] = append(refs[:i], refs[i+1:]...)
			return
		}
	}
}
