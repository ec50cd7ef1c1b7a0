package schema

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/pakdb/pakdb/pkg/btree"
	"github.com/pakdb/pakdb/pkg/txn"
)

// groupSnapshot is the gob-encodable, pointer-free image of a Group that
// gets written into the arena on commit and read back on reload: the wire
// format behind the catalog's top ref. Table/column pointers become keys
// here and are re-resolved against the decoded table set, since gob cannot
// round-trip the live *Table backlink pointers group.go/column.go use.
type groupSnapshot struct {
	NextKey TableKey
	Tables  []tableSnapshot
}

type tableSnapshot struct {
	Key            TableKey
	Name           string
	PrimaryKey     PKKind
	NextCol        ColKey
	Columns        []columnSnapshot
	Rows           []bool // per-position liveness, tombstones included
	PKInt          map[int64]ObjKey
	PKStr          map[string]ObjKey
	ContentVersion uint64
}

type columnSnapshot struct {
	Key           ColKey
	Name          string
	Kind          ColumnKind
	TargetTable   TableKey
	Policy        LinkPolicy
	BacklinkOfCol ColKey
	BacklinkOfTbl TableKey

	Ints []int64                          // Int/Bool/Link/Embedded columns
	Strs []string                         // String columns
	Back map[int][]backlinkSourceSnapshot // Backlink columns only
}

type backlinkSourceSnapshot struct {
	Table TableKey
	Col   ColKey
	Obj   ObjKey
}

func (g *Group) snapshot() groupSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]TableKey, 0, len(g.tables))
	for k := range g.tables {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := groupSnapshot{NextKey: g.nextKey, Tables: make([]tableSnapshot, 0, len(keys))}
	for _, k := range keys {
		out.Tables = append(out.Tables, g.tables[k].snapshot())
	}

	return out
}

func (t *Table) snapshot() tableSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pk := PKNone
	switch {
	case t.hasIntPK:
		pk = PKInt
	case t.hasStringPK:
		pk = PKString
	}

	rows := make([]bool, len(t.rows))
	for i, r := range t.rows {
		rows[i] = r.alive
	}

	ts := tableSnapshot{
		Key: t.key, Name: t.name, PrimaryKey: pk, NextCol: t.nextCol,
		Rows: rows, ContentVersion: t.contentVersion,
		Columns: make([]columnSnapshot, 0, len(t.cols)),
	}

	if t.hasIntPK {
		ts.PKInt = make(map[int64]ObjKey, len(t.pkInt))
		for k, v := range t.pkInt {
			ts.PKInt[k] = v
		}
	}

	if t.hasStringPK {
		ts.PKStr = make(map[string]ObjKey, len(t.pkStr))
		for k, v := range t.pkStr {
			ts.PKStr[k] = v
		}
	}

	for _, c := range t.cols {
		ts.Columns = append(ts.Columns, c.snapshot())
	}

	return ts
}

func (c *Column) snapshot() columnSnapshot {
	cs := columnSnapshot{
		Key: c.Key, Name: c.Name, Kind: c.Kind,
		TargetTable: c.TargetTable, Policy: c.Policy,
		BacklinkOfCol: c.backlinkOfCol, BacklinkOfTbl: c.backlinkOfTbl,
	}

	switch c.Kind {
	case String:
		cs.Strs = append([]string(nil), c.strs...)
	case Backlink:
		if len(c.back) > 0 {
			cs.Back = make(map[int][]backlinkSourceSnapshot, len(c.back))

			for pos, srcs := range c.back {
				list := make([]backlinkSourceSnapshot, len(srcs))
				for i, s := range srcs {
					list[i] = backlinkSourceSnapshot{Table: s.table.key, Col: s.col, Obj: s.obj}
				}

				cs.Back[pos] = list
			}
		}
	default: // Int, Bool, Link, Embedded
		n := c.tree.Len()
		cs.Ints = make([]int64, n)

		for i := 0; i < n; i++ {
			v, _ := c.tree.Get(i)
			cs.Ints[i] = v
		}
	}

	return cs
}

// decodeGroup rebuilds a live *Group bound to mgr from a decoded snapshot,
// re-threading backlink table pointers in a second pass once every table
// exists.
func decodeGroup(mgr *txn.Manager, snap groupSnapshot) (*Group, error) {
	g := NewGroup(mgr)
	g.nextKey = snap.NextKey

	for _, ts := range snap.Tables {
		t := &Table{
			group:     g,
			key:       ts.Key,
			name:      ts.Name,
			colByKey:  make(map[ColKey]*Column, len(ts.Columns)),
			colByName: make(map[string]ColKey, len(ts.Columns)),
			nextCol:   ts.NextCol,

			contentVersion: ts.ContentVersion,
		}

		switch ts.PrimaryKey {
		case PKInt:
			t.hasIntPK = true
			t.pkInt = make(map[int64]ObjKey, len(ts.PKInt))

			for k, v := range ts.PKInt {
				t.pkInt[k] = v
			}
		case PKString:
			t.hasStringPK = true
			t.pkStr = make(map[string]ObjKey, len(ts.PKStr))

			for k, v := range ts.PKStr {
				t.pkStr[k] = v
			}
		}

		t.rows = make([]row, len(ts.Rows))
		for i, alive := range ts.Rows {
			t.rows[i] = row{alive: alive}
		}

		for _, cs := range ts.Columns {
			c := &Column{
				Key: cs.Key, Name: cs.Name, Kind: cs.Kind,
				TargetTable:   cs.TargetTable,
				Policy:        cs.Policy,
				backlinkOfCol: cs.BacklinkOfCol,
				backlinkOfTbl: cs.BacklinkOfTbl,
			}

			switch cs.Kind {
			case String:
				c.strs = append([]string(nil), cs.Strs...)
			case Backlink:
				c.back = make(map[int][]backlinkSource)
			default:
				c.tree = btree.New()
				for _, v := range cs.Ints {
					if err := c.tree.Append(v); err != nil {
						return nil, fmt.Errorf("schema: rebuild column %q: %w", c.Name, err)
					}
				}
			}

			t.cols = append(t.cols, c)
			t.colByKey[c.Key] = c
			t.colByName[c.Name] = c.Key
		}

		g.tables[t.key] = t
		g.byName[t.name] = t.key
	}

	for _, ts := range snap.Tables {
		t := g.tables[ts.Key]

		for i, cs := range ts.Columns {
			if cs.Kind != Backlink || len(cs.Back) == 0 {
				continue
			}

			c := t.cols[i]

			for pos, srcs := range cs.Back {
				list := make([]backlinkSource, len(srcs))
				for i, s := range srcs {
					list[i] = backlinkSource{table: g.tables[s.Table], col: s.Col, obj: s.Obj}
				}

				c.back[pos] = list
			}
		}
	}

	return g, nil
}

func encodeGroup(g *Group) ([]byte, error) {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(g.snapshot()); err != nil {
		return nil, fmt.Errorf("schema: encode group snapshot: %w", err)
	}

	return buf.Bytes(), nil
}

func decodeGroupBytes(mgr *txn.Manager, data []byte) (*Group, error) {
	var snap groupSnapshot

	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("schema: decode group snapshot: %w", err)
	}

	return decodeGroup(mgr, snap)
}

// clone returns an independent deep copy of g, bound to the same manager,
// by round-tripping it through the wire snapshot format - the same
// copy-on-write primitive a write transaction uses to build its private
// catalog view out of the last committed one.
func (g *Group) clone() (*Group, error) {
	data, err := encodeGroup(g)
	if err != nil {
		return nil, err
	}

	return decodeGroupBytes(g.mgr, data)
}

// flush serializes g and writes it into tx's arena as a single length-
// prefixed blob, returning the ref suitable as the new top ref passed to
// tx.Commit. This is the concrete mechanism behind the catalog's durability
// and snapshot-isolation claim: the bytes a reader later resolves through
// Catalog.Snapshot are exactly what AddTable/CreateObject/SetInt etc. left
// in g at the moment of the commit that produced this ref.
func (g *Group) flush(tx *txn.Transaction) (uint64, error) {
	data, err := encodeGroup(g)
	if err != nil {
		return 0, err
	}

	arena := tx.Arena()

	ref, err := arena.Alloc(uint64(8 + len(data)))
	if err != nil {
		return 0, fmt.Errorf("schema: alloc group snapshot: %w", err)
	}

	buf, err := arena.Translate(ref, 8+len(data))
	if err != nil {
		return 0, fmt.Errorf("schema: translate group snapshot: %w", err)
	}

	binary.LittleEndian.PutUint64(buf[:8], uint64(len(data)))
	copy(buf[8:], data)

	return ref, nil
}

// blobSize returns the total arena footprint (length prefix + payload) a
// ref written by flush occupies, for the catalog to pass to Arena().Free
// once a snapshot is superseded.
func blobSize(tx *txn.Transaction, ref uint64) (uint64, error) {
	lenBuf, err := tx.Arena().Translate(ref, 8)
	if err != nil {
		return 0, fmt.Errorf("schema: translate group snapshot length: %w", err)
	}

	return 8 + binary.LittleEndian.Uint64(lenBuf), nil
}

// loadGroup reconstructs the Group committed at tx's top ref, or a fresh
// empty Group if tx.TopRef() is 0 (no commit has ever happened - a brand
// new file, per the round-trip law's base case).
func loadGroup(mgr *txn.Manager, tx *txn.Transaction) (*Group, error) {
	ref := tx.TopRef()
	if ref == 0 {
		return NewGroup(mgr), nil
	}

	arena := tx.Arena()

	lenBuf, err := arena.Translate(ref, 8)
	if err != nil {
		return nil, fmt.Errorf("schema: translate group snapshot length: %w", err)
	}

	n := binary.LittleEndian.Uint64(lenBuf)

	buf, err := arena.Translate(ref, int(8+n))
	if err != nil {
		return nil, fmt.Errorf("schema: translate group snapshot: %w", err)
	}

	return decodeGroupBytes(mgr, buf[8:])
}
