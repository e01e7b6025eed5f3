// Package docstore re-exports the document store abstractions and selects a
// backend from configuration.
package docstore

import (
	"peerhub/internal/docstore/core"
)

type (
	// Driver identifies a document store backend.
	Driver = core.Driver
	// Document is the normalized JSON object form of a record.
	Document = core.Document
	// Design bundles views and update handlers of a collection.
	Design = core.Design
	// View is a secondary index.
	View = core.View
	// Emit records a view row.
	Emit = core.Emit
	// MapFunc derives view rows from a document.
	MapFunc = core.MapFunc
	// ReduceFunc folds view values.
	ReduceFunc = core.ReduceFunc
	// UpdateFunc computes an updated document.
	UpdateFunc = core.UpdateFunc
	// Row is a view entry.
	Row = core.Row
	// Collection stores one kind of document.
	Collection = core.Collection
	// Store opens collections.
	Store = core.Store
	// Options tune backend behaviour.
	Options = core.Options
)

const (
	// DriverMemory is the in-process driver.
	DriverMemory = core.DriverMemory
	// DriverSQLite is the single-file driver.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the PostgreSQL driver.
	DriverPostgres = core.DriverPostgres
	// DefaultUpdateRetries bounds optimistic update retries by default.
	DefaultUpdateRetries = core.DefaultUpdateRetries
)

var (
	// ErrNotFound reports a missing document.
	ErrNotFound = core.ErrNotFound
	// ErrConflict reports a create race or exhausted update retries.
	ErrConflict = core.ErrConflict
	// ErrPaymentRequired reports a quota violation.
	ErrPaymentRequired = core.ErrPaymentRequired
	// ErrUnknownView reports a query on an undeclared view.
	ErrUnknownView = core.ErrUnknownView
)
