// Package core defines the document store abstraction the hub persists its
// records through, together with helpers shared by every backend.
package core

import (
	"context"
	"errors"
)

// Driver identifies a concrete document store implementation.
type Driver string

const (
	// DriverMemory keeps documents in process; used by tests and local runs.
	DriverMemory Driver = "memory"
	// DriverSQLite persists documents in a single SQLite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres persists documents in PostgreSQL JSONB columns.
	DriverPostgres Driver = "postgres"
)

// Document is the normalized JSON object form of a record: nested objects
// are map[string]any and numbers are json.Number.
type Document = map[string]any

// Emit records one (key, value) pair of a view for the document being
// mapped.
type Emit func(key string, value any)

// MapFunc derives view rows from a document. It must be pure.
type MapFunc func(doc Document, emit Emit)

// ReduceFunc folds the values of rows sharing a key. It must be associative
// and commutative so partial results can be reduced again.
type ReduceFunc func(values []any) any

// View is a secondary index over a collection.
type View struct {
	Map    MapFunc
	Reduce ReduceFunc
}

// UpdateFunc computes the new content of a stored document from an update
// argument. Returning ErrPaymentRequired rejects the update.
type UpdateFunc func(stored Document, args Document) (Document, error)

// Design bundles the views and update handlers of a collection. Bumping
// Version makes persistent backends rebuild their view rows.
type Design struct {
	Version int
	Views   map[string]View
	Updates map[string]UpdateFunc
}

// Row is one entry of a view.
type Row struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Collection stores the documents of one record kind keyed by identity.
type Collection interface {
	Name() string
	// Get returns the stored document or ErrNotFound.
	Get(ctx context.Context, key string) (Document, error)
	// Create inserts a new document or fails with ErrConflict.
	Create(ctx context.Context, key string, doc Document) error
	// Update runs the named handler against the stored document atomically
	// and returns the result.
	Update(ctx context.Context, key, handler string, args Document) (Document, error)
	// Put writes the document whether or not one already exists.
	Put(ctx context.Context, key string, doc Document) error
	// Delete removes the document or fails with ErrNotFound.
	Delete(ctx context.Context, key string) error
	// All lists every document ordered by key.
	All(ctx context.Context) ([]Document, error)
	// Query returns the rows of a view, restricted to keys when given.
	Query(ctx context.Context, view string, keys ...string) ([]Row, error)
	// Reduce returns one row per key holding the reduced value.
	Reduce(ctx context.Context, view string, keys ...string) ([]Row, error)
}

// Store opens collections.
type Store interface {
	// Collection registers design for name and returns the collection.
	Collection(ctx context.Context, name string, design Design) (Collection, error)
	Driver() Driver
	Close() error
}

// Options tune backend behaviour shared by every driver.
type Options struct {
	// MaxDocumentBytes rejects creates and updates producing a document
	// past the limit with ErrPaymentRequired. Zero disables the check.
	MaxDocumentBytes int
	// UpdateRetries bounds optimistic retries of Update on backends that
	// detect concurrent writers. Zero selects DefaultUpdateRetries.
	UpdateRetries int
}

// DefaultUpdateRetries is used when Options.UpdateRetries is zero.
const DefaultUpdateRetries = 16

// Retries returns the effective retry bound.
func (o Options) Retries() int {
	if o.UpdateRetries <= 0 {
		return DefaultUpdateRetries
	}
	return o.UpdateRetries
}

var (
	// ErrNotFound reports a missing document.
	ErrNotFound = errors.New("docstore: not found")
	// ErrConflict reports a create on an existing key or an update that
	// lost every optimistic retry.
	ErrConflict = errors.New("docstore: conflict")
	// ErrPaymentRequired reports an update rejected by a quota.
	ErrPaymentRequired = errors.New("docstore: payment required")
	// ErrUnknownView reports a query on an undeclared view.
	ErrUnknownView = errors.New("docstore: unknown view")
	// ErrUnknownHandler reports an update through an undeclared handler.
	ErrUnknownHandler = errors.New("docstore: unknown update handler")
)
