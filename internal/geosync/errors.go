package geosync

import "github.com/rotisserie/eris"

var (
	// ErrConnectionClosed is returned by Write and Read after Dispose.
	ErrConnectionClosed = eris.New("geosync: connection closed")

	// ErrPrimaryKeyViolation is returned when the written rows contain
	// duplicate primary-attribute values. The store rejects the key
	// constraint after the rows are loaded, not earlier.
	ErrPrimaryKeyViolation = eris.New("geosync: primary key violation")

	// ErrTableNotFound is returned by Read for a nonexistent table.
	ErrTableNotFound = eris.New("geosync: table not found")

	// ErrCorruptStoredGeometry is returned by Read when any row's stored
	// geometry text fails to decode. The whole read fails rather than
	// silently dropping rows.
	ErrCorruptStoredGeometry = eris.New("geosync: corrupt stored geometry")
)

// SQLSTATE codes surfaced by the store.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)
