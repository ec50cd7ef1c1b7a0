package collection

import "errors"

// ErrStaleAccessor mirrors schema.ErrStaleAccessor: the owning object was
// removed (or the collection itself replaced) since this accessor was
// vended.
var ErrStaleAccessor = errors.New("collection: stale accessor")

// ErrIndexOutOfRange is returned by Get/Set/RemoveAt for an index outside
// the collection's current length.
var ErrIndexOutOfRange = errors.New("collection: index out of range")

// ErrDuplicateElement is returned by Set.Add for a value already
// present.
var ErrDuplicateElement = errors.New("collection: duplicate element in set")

// ErrKeyNotFound is returned by Dictionary.Delete for a missing key;
// Dictionary.Get reports a missing key with ok == false instead.
var ErrKeyNotFound = errors.New("collection: key not found")
