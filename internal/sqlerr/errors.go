// Package sqlerr defines the sentinel errors shared across the engine's
// packages. Callers use errors.Is/errors.As against these values; every
// wrapping site uses fmt.Errorf("...: %w", err) so the sentinel survives.
package sqlerr

import "errors"

var (
	// ErrNotConnected is returned by adapter operations invoked on a nil
	// Adapter or after Close.
	ErrNotConnected = errors.New("sqler: adapter not connected")

	// ErrNoAdapter is returned when a query builder with no bound adapter is
	// asked to execute.
	ErrNoAdapter = errors.New("sqler: query has no bound adapter")

	// ErrNotFound indicates a row expected to exist (e.g. during Refresh) was
	// missing.
	ErrNotFound = errors.New("sqler: row not found")

	// ErrUnsavedReferent is returned when encoding a reference to a record
	// that has never been saved (has no id).
	ErrUnsavedReferent = errors.New("sqler: cannot reference an unsaved record")

	// ErrUnsavedDelete is returned by Delete on a record with no id.
	ErrUnsavedDelete = errors.New("sqler: cannot delete an unsaved record")

	// ErrUnsavedRefresh is returned by Refresh on a record with no id.
	ErrUnsavedRefresh = errors.New("sqler: cannot refresh an unsaved record")

	// ErrStaleVersion is returned when a versioned update's expected version
	// no longer matches the stored row.
	ErrStaleVersion = errors.New("sqler: stale version, row was modified concurrently")

	// ErrStorageLocked marks a transient SQLITE_BUSY/SQLITE_LOCKED condition,
	// eligible for the backoff retry policy.
	ErrStorageLocked = errors.New("sqler: storage is locked")

	// ErrBindingRequired reports a record type that is not bound to a
	// database. No function in this module returns it; record.Table
	// operations do not check for a nil document.DB handle.
	ErrBindingRequired = errors.New("sqler: record type is not bound to a database")

	// ErrBulkCountMismatch signals that BulkUpsert could not reconcile the
	// number of assigned ids with the number of inserted documents.
	ErrBulkCountMismatch = errors.New("sqler: bulk upsert id count mismatch")
)
