package memory

import (
	"context"
	"testing"

	"peerhub/internal/docstore/core"
	"peerhub/internal/docstore/docstoretest"
)

func TestConformance(t *testing.T) {
	docstoretest.Run(t, func(_ *testing.T, opts core.Options) core.Store {
		return New(opts)
	})
}

func TestViewsFollowWritesLazily(t *testing.T) {
	ctx := context.Background()
	s := New(core.Options{})
	c, err := s.Collection(ctx, "things", docstoretest.Design(1))
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	coll := c.(*Collection)
	if err := coll.Create(ctx, "a", core.Document{"name": "a", "owner": "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(coll.dirty) != 1 {
		t.Fatalf("expected one document pending indexing, got %d", len(coll.dirty))
	}
	rows, err := coll.Query(ctx, "per_owner", "alice")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || len(coll.dirty) != 0 {
		t.Fatalf("expected index refreshed on query, rows=%d dirty=%d", len(rows), len(coll.dirty))
	}
}
