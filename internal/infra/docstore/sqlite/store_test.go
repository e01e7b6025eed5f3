package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"peerhub/internal/docstore/core"
	"peerhub/internal/docstore/docstoretest"
)

func TestConformance(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T, opts core.Options) core.Store {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "hub.db"), opts)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestDocumentsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "hub.db")
	s, err := Open(ctx, path, core.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c, err := s.Collection(ctx, "things", docstoretest.Design(1))
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if err := c.Create(ctx, "a", core.Document{"name": "a", "owner": "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(ctx, path, core.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	c, err = s.Collection(ctx, "things", docstoretest.Design(1))
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	rows, err := c.Query(ctx, "per_owner", "alice")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "a" {
		t.Fatalf("expected persisted view row, got %+v", rows)
	}
}

func TestInMemoryDatabase(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", core.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	if s.Driver() != core.DriverSQLite {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
}
