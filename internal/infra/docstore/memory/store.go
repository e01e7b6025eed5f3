// Package memory provides an in-process document store. Documents are kept
// serialized so callers never share state with the store, and view rows are
// derived lazily on the first query following a write.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"peerhub/internal/docstore/core"
)

var _ core.Store = (*Store)(nil)

// Store is a set of in-memory collections.
type Store struct {
	opts        core.Options
	mu          sync.Mutex
	collections map[string]*Collection
}

// New returns an empty store.
func New(opts core.Options) *Store {
	return &Store{opts: opts, collections: map[string]*Collection{}}
}

// Driver identifies the backend.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Collection returns the named collection, creating it on first use. A
// design registered again replaces the previous one and invalidates every
// view row.
func (s *Store) Collection(_ context.Context, name string, design core.Design) (core.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &Collection{
			name:  name,
			opts:  s.opts,
			docs:  map[string][]byte{},
			rows:  map[string][]core.EncodedRow{},
			dirty: map[string]struct{}{},
		}
		s.collections[name] = c
	}
	c.setDesign(design)
	return c, nil
}

// Collection holds the documents of one kind.
type Collection struct {
	name string
	opts core.Options

	mu          sync.Mutex
	design      core.Design
	fingerprint string
	docs        map[string][]byte
	rows        map[string][]core.EncodedRow
	dirty       map[string]struct{}
}

var _ core.Collection = (*Collection)(nil)

func (c *Collection) setDesign(design core.Design) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.design = design
	fp := core.Fingerprint(design)
	if fp == c.fingerprint {
		return
	}
	c.fingerprint = fp
	c.rows = map[string][]core.EncodedRow{}
	for id := range c.docs {
		c.dirty[id] = struct{}{}
	}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Get returns a copy of the stored document.
func (c *Collection) Get(_ context.Context, key string) (core.Document, error) {
	c.mu.Lock()
	raw, ok := c.docs[key]
	c.mu.Unlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	return core.Decode(raw)
}

// Create inserts doc unless key is taken.
func (c *Collection) Create(_ context.Context, key string, doc core.Document) error {
	raw, err := core.Encode(doc)
	if err != nil {
		return err
	}
	if err := core.CheckSize(raw, c.opts); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[key]; exists {
		return fmt.Errorf("%w: %s/%s", core.ErrConflict, c.name, key)
	}
	c.write(key, raw)
	return nil
}

// Update runs handler under the collection lock.
func (c *Collection) Update(_ context.Context, key, handler string, args core.Document) (core.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.docs[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	stored, err := core.Decode(raw)
	if err != nil {
		return nil, err
	}
	updated, encoded, err := core.ApplyUpdate(c.design, handler, stored, args, c.opts)
	if err != nil {
		return nil, err
	}
	c.write(key, encoded)
	return updated, nil
}

// Put writes doc unconditionally.
func (c *Collection) Put(_ context.Context, key string, doc core.Document) error {
	raw, err := core.Encode(doc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(key, raw)
	return nil
}

// Delete removes the document and its view rows.
func (c *Collection) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[key]; !ok {
		return core.ErrNotFound
	}
	delete(c.docs, key)
	delete(c.rows, key)
	delete(c.dirty, key)
	return nil
}

// All returns every document ordered by key.
func (c *Collection) All(_ context.Context) ([]core.Document, error) {
	c.mu.Lock()
	keys := make([]string, 0, len(c.docs))
	for k := range c.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	raws := make([][]byte, 0, len(keys))
	for _, k := range keys {
		raws = append(raws, c.docs[k])
	}
	c.mu.Unlock()
	out := make([]core.Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := core.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Query returns the rows of view, ordered by key then document.
func (c *Collection) Query(_ context.Context, view string, keys ...string) ([]core.Row, error) {
	encoded, err := c.viewRows(view, keys)
	if err != nil {
		return nil, err
	}
	rows := make([]core.Row, 0, len(encoded))
	for _, e := range encoded {
		r, err := e.Row()
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	core.SortRows(rows)
	return rows, nil
}

// Reduce folds the rows of view per key.
func (c *Collection) Reduce(ctx context.Context, view string, keys ...string) ([]core.Row, error) {
	c.mu.Lock()
	v, ok := c.design.Views[view]
	c.mu.Unlock()
	if !ok || v.Reduce == nil {
		return nil, fmt.Errorf("%w: %s/%s has no reduction", core.ErrUnknownView, c.name, view)
	}
	rows, err := c.Query(ctx, view, keys...)
	if err != nil {
		return nil, err
	}
	return core.ReduceRows(v.Reduce, rows), nil
}

func (c *Collection) viewRows(view string, keys []string) ([]core.EncodedRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.design.Views[view]; !ok {
		return nil, fmt.Errorf("%w: %s/%s", core.ErrUnknownView, c.name, view)
	}
	if err := c.refresh(); err != nil {
		return nil, err
	}
	wanted := core.KeySet(keys)
	var out []core.EncodedRow
	for _, rows := range c.rows {
		for _, r := range rows {
			if r.View != view {
				continue
			}
			if wanted != nil {
				if _, ok := wanted[r.Key]; !ok {
					continue
				}
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// refresh re-maps documents written since the last query. Callers hold mu.
func (c *Collection) refresh() error {
	for id := range c.dirty {
		doc, err := core.Decode(c.docs[id])
		if err != nil {
			return err
		}
		rows, err := core.EncodeIndex(c.design, id, doc)
		if err != nil {
			return err
		}
		c.rows[id] = rows
		delete(c.dirty, id)
	}
	return nil
}

// write stores raw and marks the document for reindexing. Callers hold mu.
func (c *Collection) write(key string, raw []byte) {
	c.docs[key] = raw
	c.dirty[key] = struct{}{}
}
