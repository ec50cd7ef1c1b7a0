package array

// width0FastPath reports whether a width-0 leaf (every element is zero, no
// storage backing it at all) satisfies an equality test against v, without
// touching any kernel. Width 0 arises constantly for freshly inserted
// all-default columns, so short-circuiting it avoids allocating a chunk
// buffer for leaves that carry no information.
func width0FastPath(v int64) bool {
	return v == 0
}
