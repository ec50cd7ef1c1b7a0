package array

import "errors"

// ErrWidthOverflow is returned by Set when a value does not fit in the
// array's current bit width. Callers must promote the width explicitly via
// PromoteWidth before retrying.
var ErrWidthOverflow = errors.New("array: value does not fit current width")

// ErrIndexOutOfRange is returned by Get/Set for an out-of-bounds index.
var ErrIndexOutOfRange = errors.New("array: index out of range")

// ErrWidthRegression is returned by PromoteWidth when asked to move to a
// narrower width; width changes within a transaction are monotonic.
var ErrWidthRegression = errors.New("array: width regression not allowed")

// ErrInvalidWidth is returned when a width outside {0,1,2,4,8,16,32,64} is
// requested.
var ErrInvalidWidth = errors.New("array: width must be one of 0,1,2,4,8,16,32,64")
