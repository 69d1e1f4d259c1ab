// Package fluxdb implements a lightweight, embeddable, file-based document
// store. Records are flat string-keyed maps, grouped into named
// collections, each persisted as an append-oriented binary log with an
// optional on-disk inverted index for equality lookups.
//
// A Database owns a directory: one append log per collection plus an
// indexes/ subdirectory holding the inverted index for collections that
// were created with indexed fields. All operations except Close are safe
// for concurrent use from multiple goroutines; see the doc on Database
// for the concurrency contract.
package fluxdb

import "errors"

// Sentinel errors returned by database operations. Callers should compare
// against these with errors.Is rather than matching on error text.
var (
	// ErrCollectionNotFound is returned when an operation targets a
	// collection whose log file does not exist.
	ErrCollectionNotFound = errors.New("fluxdb: collection not found")

	// ErrTransactionActive is returned by BeginTransaction when a
	// transaction is already open.
	ErrTransactionActive = errors.New("fluxdb: transaction already active")

	// ErrNoTransaction is returned by Commit or Rollback when no
	// transaction is open.
	ErrNoTransaction = errors.New("fluxdb: no active transaction")

	// ErrRecordTooLarge is returned when a record's _id exceeds the
	// 36-byte frame slot, or a key is not valid UTF-8.
	ErrRecordTooLarge = errors.New("fluxdb: record cannot be encoded")

	// ErrInvalidName is returned when a collection name is empty, is the
	// reserved name "indexes", starts with a dot, or contains a path
	// separator, a NUL byte or "..".
	ErrInvalidName = errors.New("fluxdb: invalid collection name")

	// ErrClosed is returned when operating on a closed Database.
	ErrClosed = errors.New("fluxdb: database is closed")
)
