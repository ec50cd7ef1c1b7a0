package btree

import "errors"

// ErrIndexOutOfRange is returned by Get/Set/Insert for a position outside
// [0, Len()) (or, for Insert, outside [0, Len()]).
var ErrIndexOutOfRange = errors.New("btree: index out of range")
