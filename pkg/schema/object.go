package schema

import (
	"fmt"

	"github.com/pakdb/pakdb/pkg/txn"
)

// Object is a handle to one row. It is bound to the table's content version
// at the moment it was vended and reports ErrStaleAccessor if the row has
// since been tombstoned.
type Object struct {
	table        *Table
	key          ObjKey
	boundVersion uint64
}

// Key returns the object's identity within its table.
func (o *Object) Key() ObjKey { return o.key }

func (o *Object) checkLive() error {
	if !o.table.IsAlive(posOf(o.key)) {
		return fmt.Errorf("%w: key %d", ErrStaleAccessor, o.key)
	}

	return nil
}

// GetInt reads an Int/Bool column cell.
func (o *Object) GetInt(col ColKey) (int64, error) {
	if err := o.checkLive(); err != nil {
		return 0, err
	}

	c, err := o.table.column(col)
	if err != nil {
		return 0, err
	}

	return c.getInt(posOf(o.key))
}

// SetInt writes an Int/Bool column cell.
func (o *Object) SetInt(tx *txn.Transaction, col ColKey, v int64) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := o.checkLive(); err != nil {
		return err
	}

	c, err := o.table.column(col)
	if err != nil {
		return err
	}

	return c.setInt(posOf(o.key), v)
}

// GetString reads a String column cell.
func (o *Object) GetString(col ColKey) (string, error) {
	if err := o.checkLive(); err != nil {
		return "", err
	}

	c, err := o.table.column(col)
	if err != nil {
		return "", err
	}

	return c.getString(posOf(o.key)), nil
}

// SetString writes a String column cell.
func (o *Object) SetString(tx *txn.Transaction, col ColKey, v string) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := o.checkLive(); err != nil {
		return err
	}

	c, err := o.table.column(col)
	if err != nil {
		return err
	}

	c.setString(posOf(o.key), v)

	return nil
}

// GetLink reads a Link/Embedded column cell, returning NullObjKey if unset.
func (o *Object) GetLink(col ColKey) (ObjKey, error) {
	if err := o.checkLive(); err != nil {
		return NullObjKey, err
	}

	c, err := o.table.column(col)
	if err != nil {
		return NullObjKey, err
	}

	v, err := c.getInt(posOf(o.key))

	return ObjKey(v), err
}

// SetLink writes a Link/Embedded column cell, maintaining the target
// table's hidden backlink column atomically.
func (o *Object) SetLink(tx *txn.Transaction, col ColKey, target ObjKey) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := o.checkLive(); err != nil {
		return err
	}

	return o.table.setLink(tx, o.key, col, target)
}

// setLink is the link-mutation primitive shared by Object.SetLink and the
// cascade-removal path (which nulls weak links without a caller-held
// *Object).
func (t *Table) setLink(tx *txn.Transaction, obj ObjKey, col ColKey, target ObjKey) error {
	c, err := t.column(col)
	if err != nil {
		return err
	}

	pos := posOf(obj)

	old, err := c.getInt(pos)
	if err != nil {
		return err
	}

	if old != 0 {
		oldTarget := t.group.tableByKey(c.TargetTable)
		if oldTarget != nil {
			if bl := oldTarget.backlinkColumnFor(t.key, col); bl != nil {
				bl.removeBacklink(posOf(ObjKey(old)), t, col, obj)
			}
		}
	}

	if err := c.setInt(pos, int64(target)); err != nil {
		return err
	}

	if target != 0 {
		newTarget := t.group.tableByKey(c.TargetTable)
		if newTarget == nil {
			return fmt.Errorf("%w: target table %d", ErrTableNotFound, c.TargetTable)
		}

		bl := newTarget.backlinkColumnFor(t.key, col)
		if bl == nil {
			return fmt.Errorf("schema: column %d has no backlink on target table", col)
		}

		bl.addBacklink(posOf(target), backlinkSource{table: t, col: col, obj: obj})
	}

	t.mu.Lock()
	t.bumpVersion()
	t.mu.Unlock()

	return nil
}
