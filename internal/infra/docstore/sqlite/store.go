// Package sqlite provides the single-file document store backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"peerhub/internal/docstore/core"
	"peerhub/internal/infra/docstore/sqlstore"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const defaultPath = "peerhub.db"

var sqlOpen = sql.Open

// Dialect is the SQLite flavour of the shared SQL backend.
var Dialect = sqlstore.Dialect{
	Driver:      core.DriverSQLite,
	JSONType:    "TEXT",
	Placeholder: sqlstore.QuestionMark,
}

// Open creates the database file when missing and prepares the schema.
// The special path ":memory:" keeps everything in process.
func Open(ctx context.Context, path string, opts core.Options) (*sqlstore.Store, error) {
	if path == "" {
		path = defaultPath
	}
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlOpen("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)
	store, err := sqlstore.New(ctx, db, Dialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
