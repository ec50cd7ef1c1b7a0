package schema

import (
	"fmt"
	"sync"

	"github.com/pakdb/pakdb/pkg/txn"
)

// Group is one version's schema catalog: the set of tables, reachable from
// an open txn.Manager. Table/column/object data lives in-memory on the
// Group (backed by pkg/btree.ColumnTree for typed columns), but a Group
// value itself is never shared live across transactions in pkg/pakdb -
// Catalog hands each transaction either the immutable Group decoded from
// its own top ref or, for the one in-flight writer, a private clone, so
// AddTable/CreateObject/SetInt and friends only ever mutate a snapshot
// nobody else can observe until Catalog.Commit serializes it into the
// arena and swaps the top ref (snapshot.go). Using a Group obtained
// directly from NewGroup bypasses that isolation and commits nothing to
// disk; it exists for package-local unit tests that only need the in-
// memory mutation semantics, not durability.
type Group struct {
	mgr *txn.Manager

	mu       sync.RWMutex
	tables   map[TableKey]*Table
	byName   map[string]TableKey
	nextKey  TableKey
}

// NewGroup binds a schema catalog to an open transaction manager.
func NewGroup(mgr *txn.Manager) *Group {
	return &Group{
		mgr:    mgr,
		tables: make(map[TableKey]*Table),
		byName: make(map[string]TableKey),
	}
}

// AddTable creates a new, empty table. Requires tx to be a write
// transaction.
func (g *Group) AddTable(tx *txn.Transaction, name string, opts TableOptions) (*Table, error) {
	if err := requireWriting(tx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.byName[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrTableExists, name)
	}

	key := g.nextKey
	g.nextKey++

	t := newTable(g, key, name, opts)
	g.tables[key] = t
	g.byName[name] = key

	return t, nil
}

// GetTable resolves a table by key.
func (g *Group) GetTable(key TableKey) (*Table, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.tables[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %d", ErrTableNotFound, key)
	}

	return t, nil
}

// GetTableByName resolves a table by its declared name.
func (g *Group) GetTableByName(name string) (*Table, error) {
	g.mu.RLock()
	key, ok := g.byName[name]
	g.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}

	return g.GetTable(key)
}

// RemoveTable drops a table and all of its objects. Requires a write
// transaction.
func (g *Group) RemoveTable(tx *txn.Transaction, key TableKey) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tables[key]
	if !ok {
		return fmt.Errorf("%w: key %d", ErrTableNotFound, key)
	}

	delete(g.tables, key)
	delete(g.byName, t.name)

	return nil
}

// TableKeys returns every table key currently in the group, in no
// particular order.
func (g *Group) TableKeys() []TableKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]TableKey, 0, len(g.tables))
	for k := range g.tables {
		keys = append(keys, k)
	}

	return keys
}

func (g *Group) tableByKey(key TableKey) *Table {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.tables[key]
}
