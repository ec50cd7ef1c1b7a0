package schema

// TableKey identifies a table within a Group for the lifetime of the Group.
type TableKey uint32

// ColKey identifies a column within a single table.
type ColKey uint32

// ObjKey identifies a row (object) within a single table. Keys are assigned
// monotonically on CreateObject and never reused, so a removed object's key
// can still be checked against a tombstoned row rather than silently
// resolving to whatever was later created at the same slot.
type ObjKey uint64

// NullObjKey is the reserved "no link" value stored in link columns.
const NullObjKey ObjKey = 0
