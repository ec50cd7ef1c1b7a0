package query

import "errors"

// ErrNotIntColumn is returned when a query touches a column whose storage
// kind doesn't support the packed-integer kernels (e.g. a String column).
var ErrNotIntColumn = errors.New("query: column is not integer-backed")
