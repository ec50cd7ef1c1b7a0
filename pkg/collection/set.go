package collection

import (
	"fmt"

	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/pakdb/pakdb/pkg/txn"
)

// Set is a List with uniqueness enforced on Add, per §4.5's Set collection.
type Set struct {
	*List
}

// NewSet binds a Set accessor to (obj, col).
func NewSet(store *Store, table *schema.Table, obj schema.ObjKey, col schema.ColKey) (*Set, error) {
	l, err := NewList(store, table, obj, col)
	if err != nil {
		return nil, err
	}

	return &Set{List: l}, nil
}

// Add appends v, rejecting it if already present.
func (s *Set) Add(tx *txn.Transaction, v int64) error {
	if err := requireWriting(tx); err != nil {
		return err
	}

	if err := s.checkLive(); err != nil {
		return err
	}

	s.store.mu.Lock()
	for _, existing := range s.store.lists[s.k] {
		if existing == v {
			s.store.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrDuplicateElement, v)
		}
	}
	s.store.mu.Unlock()

	return s.List.Append(tx, v)
}

// Contains reports whether v is currently in the set.
func (s *Set) Contains(v int64) (bool, error) {
	if err := s.checkLive(); err != nil {
		return false, err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	for _, existing := range s.store.lists[s.k] {
		if existing == v {
			return true, nil
		}
	}

	return false, nil
}
