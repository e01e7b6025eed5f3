// Package sqlstore implements the document store on top of database/sql.
// Documents live in one table keyed by (collection, id) with a revision
// counter; view rows are derived in the same transaction as every write.
// Dialect differences between SQLite and PostgreSQL are isolated in Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"peerhub/internal/docstore/core"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Driver core.Driver
	// JSONType is the column type holding serialized documents.
	JSONType string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// JSONCast wraps a placeholder receiving a JSON document.
	JSONCast func(placeholder string) string
	// Retryable reports errors caused by concurrent writers that a fresh
	// attempt may not hit.
	Retryable func(error) bool
}

// QuestionMark renders "?" placeholders.
func QuestionMark(int) string { return "?" }

// Dollar renders "$n" placeholders.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Store is a database/sql backed core.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	opts    core.Options

	mu          sync.Mutex
	collections map[string]*Collection
}

var _ core.Store = (*Store)(nil)

// New prepares the schema on db and returns the store.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts core.Options) (*Store, error) {
	s := &Store{db: db, dialect: dialect, opts: opts, collections: map[string]*Collection{}}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Driver identifies the backend.
func (s *Store) Driver() core.Driver { return s.dialect.Driver }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			rev BIGINT NOT NULL,
			body %s NOT NULL,
			PRIMARY KEY (collection, id)
		)`, s.dialect.JSONType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS view_rows (
			collection TEXT NOT NULL,
			view_name TEXT NOT NULL,
			row_key TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			value_json %s NOT NULL
		)`, s.dialect.JSONType),
		`CREATE INDEX IF NOT EXISTS view_rows_lookup ON view_rows (collection, view_name, row_key)`,
		`CREATE INDEX IF NOT EXISTS view_rows_document ON view_rows (collection, doc_id)`,
		`CREATE TABLE IF NOT EXISTS designs (
			collection TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.dialect.Driver, err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders for the dialect.
func (s *Store) rebind(query string) string {
	if s.dialect.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) jsonParam() string {
	if s.dialect.JSONCast == nil {
		return "?"
	}
	return s.dialect.JSONCast("?")
}

// Collection registers design for name, rebuilding the view rows when the
// stored fingerprint differs.
func (s *Store) Collection(ctx context.Context, name string, design core.Design) (core.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Collection{store: s, name: name, design: design}
	if err := c.ensureIndexed(ctx); err != nil {
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

// Collection is a database/sql backed core.Collection.
type Collection struct {
	store  *Store
	name   string
	design core.Design
}

var _ core.Collection = (*Collection)(nil)

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) ensureIndexed(ctx context.Context) error {
	s := c.store
	fp := core.Fingerprint(c.design)
	var current string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT fingerprint FROM designs WHERE collection = ?`), c.name).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: read design %s: %w", s.dialect.Driver, c.name, err)
	}
	if current == fp {
		return nil
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM view_rows WHERE collection = ?`), c.name); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, s.rebind(`SELECT id, body FROM documents WHERE collection = ?`), c.name)
		if err != nil {
			return err
		}
		type stored struct {
			id   string
			body []byte
		}
		var docs []stored
		for rows.Next() {
			var d stored
			if err := rows.Scan(&d.id, &d.body); err != nil {
				_ = rows.Close()
				return err
			}
			docs = append(docs, d)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for _, d := range docs {
			doc, err := core.Decode(d.body)
			if err != nil {
				return err
			}
			if err := c.insertRows(ctx, tx, d.id, doc); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO designs (collection, fingerprint) VALUES (?, ?)
			ON CONFLICT (collection) DO UPDATE SET fingerprint = excluded.fingerprint`), c.name, fp)
		return err
	})
}

// Get returns the stored document.
func (c *Collection) Get(ctx context.Context, key string) (core.Document, error) {
	doc, _, err := c.load(ctx, key)
	return doc, err
}

func (c *Collection) load(ctx context.Context, key string) (core.Document, int64, error) {
	s := c.store
	var (
		body []byte
		rev  int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body, rev FROM documents WHERE collection = ? AND id = ?`), c.name, key).Scan(&body, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, core.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: get %s/%s: %w", s.dialect.Driver, c.name, key, err)
	}
	doc, err := core.Decode(body)
	if err != nil {
		return nil, 0, err
	}
	return doc, rev, nil
}

// Create inserts doc unless key is taken.
func (c *Collection) Create(ctx context.Context, key string, doc core.Document) error {
	s := c.store
	normalized, raw, err := core.Normalize(doc)
	if err != nil {
		return err
	}
	if err := core.CheckSize(raw, s.opts); err != nil {
		return err
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO documents (collection, id, rev, body) VALUES (?, ?, 1, `+s.jsonParam()+`)
			ON CONFLICT (collection, id) DO NOTHING`), c.name, key, string(raw))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s/%s", core.ErrConflict, c.name, key)
		}
		return c.insertRows(ctx, tx, key, normalized)
	})
}

// Update reads the document, applies handler and writes the result only if
// no other writer got there first, retrying a bounded number of times.
func (c *Collection) Update(ctx context.Context, key, handler string, args core.Document) (core.Document, error) {
	s := c.store
	for attempt := 0; attempt < s.opts.Retries(); attempt++ {
		stored, rev, err := c.load(ctx, key)
		if err != nil {
			return nil, err
		}
		updated, raw, err := core.ApplyUpdate(c.design, handler, stored, args, s.opts)
		if err != nil {
			return nil, err
		}
		won := false
		err = c.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, s.rebind(`UPDATE documents SET body = `+s.jsonParam()+`, rev = rev + 1
				WHERE collection = ? AND id = ? AND rev = ?`), string(raw), c.name, key, rev)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			won = true
			return c.replaceRows(ctx, tx, key, updated)
		})
		if err != nil {
			if s.dialect.Retryable != nil && s.dialect.Retryable(err) {
				continue
			}
			return nil, err
		}
		if won {
			return updated, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s/%s: update retries exhausted", core.ErrConflict, c.name, key)
}

// Put writes doc whether or not it exists.
func (c *Collection) Put(ctx context.Context, key string, doc core.Document) error {
	s := c.store
	normalized, raw, err := core.Normalize(doc)
	if err != nil {
		return err
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO documents (collection, id, rev, body) VALUES (?, ?, 1, `+s.jsonParam()+`)
			ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, rev = documents.rev + 1`), c.name, key, string(raw))
		if err != nil {
			return err
		}
		return c.replaceRows(ctx, tx, key, normalized)
	})
}

// Delete removes the document and its view rows.
func (c *Collection) Delete(ctx context.Context, key string) error {
	s := c.store
	return c.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), c.name, key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM view_rows WHERE collection = ? AND doc_id = ?`), c.name, key)
		return err
	})
}

// All returns every document ordered by key.
func (c *Collection) All(ctx context.Context) ([]core.Document, error) {
	s := c.store
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT body FROM documents WHERE collection = ? ORDER BY id`), c.name)
	if err != nil {
		return nil, fmt.Errorf("%s: list %s: %w", s.dialect.Driver, c.name, err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := core.Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Query returns the rows of view ordered by key then document.
func (c *Collection) Query(ctx context.Context, view string, keys ...string) ([]core.Row, error) {
	s := c.store
	if _, ok := c.design.Views[view]; !ok {
		return nil, fmt.Errorf("%w: %s/%s", core.ErrUnknownView, c.name, view)
	}
	query := `SELECT doc_id, row_key, value_json FROM view_rows WHERE collection = ? AND view_name = ?`
	args := []any{c.name, view}
	if len(keys) > 0 {
		query += ` AND row_key IN (?` + strings.Repeat(", ?", len(keys)-1) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}
	query += ` ORDER BY row_key, doc_id, seq`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query %s/%s: %w", s.dialect.Driver, c.name, view, err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Row
	for rows.Next() {
		var e core.EncodedRow
		if err := rows.Scan(&e.ID, &e.Key, &e.Value); err != nil {
			return nil, err
		}
		r, err := e.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reduce folds the rows of view per key.
func (c *Collection) Reduce(ctx context.Context, view string, keys ...string) ([]core.Row, error) {
	v, ok := c.design.Views[view]
	if !ok || v.Reduce == nil {
		return nil, fmt.Errorf("%w: %s/%s has no reduction", core.ErrUnknownView, c.name, view)
	}
	rows, err := c.Query(ctx, view, keys...)
	if err != nil {
		return nil, err
	}
	return core.ReduceRows(v.Reduce, rows), nil
}

func (c *Collection) replaceRows(ctx context.Context, tx *sql.Tx, id string, doc core.Document) error {
	s := c.store
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM view_rows WHERE collection = ? AND doc_id = ?`), c.name, id); err != nil {
		return err
	}
	return c.insertRows(ctx, tx, id, doc)
}

func (c *Collection) insertRows(ctx context.Context, tx *sql.Tx, id string, doc core.Document) error {
	s := c.store
	rows, err := core.EncodeIndex(c.design, id, doc)
	if err != nil {
		return err
	}
	stmt := s.rebind(`INSERT INTO view_rows (collection, view_name, row_key, doc_id, seq, value_json) VALUES (?, ?, ?, ?, ?, ` + s.jsonParam() + `)`)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, stmt, c.name, r.View, r.Key, r.ID, r.Seq, string(r.Value)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) inTx(ctx context.Context, fn func(*sql.Tx) error) (retErr error) {
	s := c.store
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.dialect.Driver, err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.dialect.Driver, err)
	}
	return nil
}
