package schema

import "errors"

var (
	// ErrTableExists is returned by AddTable for a name already in the group.
	ErrTableExists = errors.New("schema: table already exists")

	// ErrTableNotFound is returned by GetTable/RemoveTable for an unknown
	// table key or name.
	ErrTableNotFound = errors.New("schema: table not found")

	// ErrColumnExists is returned by Table.AddColumn for a name already on
	// the table.
	ErrColumnExists = errors.New("schema: column already exists")

	// ErrColumnNotFound is returned for an unknown column key or name.
	ErrColumnNotFound = errors.New("schema: column not found")

	// ErrObjectNotFound is returned by GetObject/RemoveObject for an object
	// key that does not exist or has been tombstoned.
	ErrObjectNotFound = errors.New("schema: object not found")

	// ErrStaleAccessor is returned when a collection or object accessor is
	// used after the object it is bound to was removed out-of-band.
	ErrStaleAccessor = errors.New("schema: stale accessor")

	// ErrWrongTransactionKind is returned by schema-mutating calls made
	// outside a write transaction.
	ErrWrongTransactionKind = errors.New("schema: schema edits require a write transaction")

	// ErrDuplicatePrimaryKey is returned by CreateObject when pk collides
	// with an existing live object's primary key.
	ErrDuplicatePrimaryKey = errors.New("schema: duplicate primary key")
)
