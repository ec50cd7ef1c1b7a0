// Package collection implements the List/Set/Dictionary accessors of §4.5:
// handles bound to (ObjKey, ColKey) that check on every call that the
// owning object is still live, surfacing StaleAccessor once it is gone.
// They do not compare the owning object's content version.
package collection

import (
	"sync"

	"github.com/pakdb/pakdb/pkg/schema"
)

// key identifies one collection cell: a particular column on a particular
// object.
type key struct {
	table schema.TableKey
	col   schema.ColKey
	obj   schema.ObjKey
}

// Store holds every List/Set/Dictionary collection's backing content for
// one Group. Unlike plain int/string columns, collection cells hold a
// variable-length payload per row, so they live in their own map rather
// than a btree.ColumnTree leaf.
type Store struct {
	mu    sync.Mutex
	lists map[key][]int64
	dicts map[key]map[string]int64
}

// NewStore returns an empty collection store.
func NewStore() *Store {
	return &Store{
		lists: make(map[key][]int64),
		dicts: make(map[key]map[string]int64),
	}
}

func cellKey(table *schema.Table, obj schema.ObjKey, col schema.ColKey) key {
	return key{table: table.Key(), col: col, obj: obj}
}
