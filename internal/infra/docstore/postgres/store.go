// Package postgres provides the PostgreSQL document store backend. Documents
// and view values are kept in JSONB columns.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"peerhub/internal/docstore/core"
	"peerhub/internal/infra/docstore/sqlstore"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/peerhub?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// SQLSTATE codes raised by concurrent writers.
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	uniqueViolation      = "23505"
)

// Dialect is the PostgreSQL flavour of the shared SQL backend.
var Dialect = sqlstore.Dialect{
	Driver:      core.DriverPostgres,
	JSONType:    "JSONB",
	Placeholder: sqlstore.Dollar,
	JSONCast:    func(p string) string { return "CAST(" + p + " AS JSONB)" },
	Retryable:   Retryable,
}

// Retryable reports errors raised when concurrent transactions collide.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case serializationFailure, deadlockDetected, uniqueViolation:
		return true
	default:
		return false
	}
}

// Open connects to dsn (falling back to a local default) and prepares the
// schema.
func Open(ctx context.Context, dsn string, opts core.Options) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := sqlstore.New(ctx, db, Dialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
