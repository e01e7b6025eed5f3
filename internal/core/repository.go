package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peerhub/internal/docstore"
	"peerhub/internal/index"
	"peerhub/pkg/domain"
)

// MetricsRecorder receives the outcome of every persistence operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracked is a record together with the document it was loaded or built
// from. Saving a tracked record transmits only what changed since.
type Tracked[T any] struct {
	Value    T
	original docstore.Document
}

// Repository persists one record kind through its schema descriptor.
type Repository[T any] struct {
	schema  domain.Schema
	coll    docstore.Collection
	key     func(T) string
	metrics MetricsRecorder
}

// NewRepository binds schema to coll. key returns the identity of a record.
func NewRepository[T any](schema domain.Schema, coll docstore.Collection, key func(T) string, metrics MetricsRecorder) *Repository[T] {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Repository[T]{schema: schema, coll: coll, key: key, metrics: metrics}
}

// Track uses v as the baseline of a later Save. A record holding only its
// identity makes a stub: fields set afterwards are written without loading
// the stored document first.
func (r *Repository[T]) Track(v T) (*Tracked[T], error) {
	doc, err := domain.ToDocument(v)
	if err != nil {
		return nil, err
	}
	return &Tracked[T]{Value: v, original: doc}, nil
}

// Create stores v as a new document.
func (r *Repository[T]) Create(ctx context.Context, v T) (err error) {
	defer r.observe(ctx, "create", time.Now(), &err)
	doc, err := domain.ToDocument(v)
	if err != nil {
		return err
	}
	doc = r.schema.Project(doc)
	if field, missing := r.schema.Missing(doc); missing {
		return domain.MissingFieldError{Entity: r.schema.Entity, Field: field}
	}
	r.schema.ApplyDefaults(doc)
	key := r.key(v)
	if err := r.coll.Create(ctx, key, doc); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return domain.DuplicateError{Entity: r.schema.Entity, Name: key}
		}
		return r.translate(key, err)
	}
	return nil
}

// Fetch loads the record stored under key.
func (r *Repository[T]) Fetch(ctx context.Context, key string) (_ *Tracked[T], err error) {
	defer r.observe(ctx, "fetch", time.Now(), &err)
	doc, err := r.coll.Get(ctx, key)
	if err != nil {
		return nil, r.translate(key, err)
	}
	var v T
	if err := domain.FromDocument(doc, &v); err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.schema.Entity, key, err)
	}
	return r.Track(v)
}

// Get loads the record stored under key.
func (r *Repository[T]) Get(ctx context.Context, key string) (T, error) {
	t, err := r.Fetch(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.Value, nil
}

// Save writes the difference between the tracked baseline and the current
// value. Concurrent saves touching disjoint keys of map fields both land.
func (r *Repository[T]) Save(ctx context.Context, t *Tracked[T]) (err error) {
	defer r.observe(ctx, "save", time.Now(), &err)
	current, err := domain.ToDocument(t.Value)
	if err != nil {
		return err
	}
	diff := r.schema.Diff(t.original, current)
	if len(diff) == 0 {
		return nil
	}
	key := r.key(t.Value)
	if _, err := r.coll.Update(ctx, key, index.UpdateDiff, diff); err != nil {
		return r.translate(key, err)
	}
	t.original = current
	return nil
}

// Overwrite replaces every field of the stored document except the
// identity with the fields present on v.
func (r *Repository[T]) Overwrite(ctx context.Context, v T) (err error) {
	defer r.observe(ctx, "overwrite", time.Now(), &err)
	current, err := domain.ToDocument(v)
	if err != nil {
		return err
	}
	key := r.key(v)
	if _, err := r.coll.Update(ctx, key, index.UpdateOverwrite, r.schema.Overwrite(current)); err != nil {
		return r.translate(key, err)
	}
	return nil
}

// Delete removes the record stored under key.
func (r *Repository[T]) Delete(ctx context.Context, key string) (err error) {
	defer r.observe(ctx, "delete", time.Now(), &err)
	if err := r.coll.Delete(ctx, key); err != nil {
		return r.translate(key, err)
	}
	return nil
}

// Query returns the records emitted by view for keys, each at most once.
func (r *Repository[T]) Query(ctx context.Context, view string, keys ...string) (_ []T, err error) {
	defer r.observe(ctx, "query."+view, time.Now(), &err)
	rows, err := r.coll.Query(ctx, view, keys...)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		doc, ok := row.Value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: view %s row %s holds no document", r.schema.Entity, view, row.ID)
		}
		var v T
		if err := domain.FromDocument(doc, &v); err != nil {
			return nil, fmt.Errorf("%s %s: %w", r.schema.Entity, row.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Reduce returns the reduced rows of view for keys.
func (r *Repository[T]) Reduce(ctx context.Context, view string, keys ...string) (_ []docstore.Row, err error) {
	defer r.observe(ctx, "reduce."+view, time.Now(), &err)
	return r.coll.Reduce(ctx, view, keys...)
}

// All lists every record.
func (r *Repository[T]) All(ctx context.Context) (_ []T, err error) {
	defer r.observe(ctx, "all", time.Now(), &err)
	docs, err := r.coll.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := domain.FromDocument(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Repository[T]) translate(key string, err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return domain.NotFoundError{Entity: r.schema.Entity, Name: key}
	case errors.Is(err, docstore.ErrPaymentRequired):
		return fmt.Errorf("%w: %v", domain.ErrPaymentRequired, err)
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%w: %v", domain.ErrUpdateConflict, err)
	default:
		return err
	}
}

func (r *Repository[T]) observe(ctx context.Context, op string, start time.Time, err *error) {
	r.metrics.Observe(ctx, r.coll.Name()+"."+op, *err == nil, time.Since(start))
}
