package fs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"peerhub/internal/blob/blobtest"
	"peerhub/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestConformance(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store { return newTempStore(t) })
}

func TestStore_InvalidKeys(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../../b", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStore_SidecarLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	if _, err := store.Put(context.Background(), "a/b.txt", bytes.NewReader([]byte("hi")), core.PutOptions{Metadata: map[string]string{"k": "v"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a", "b.txt")); err != nil {
		t.Fatalf("data file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a", "b.txt.meta")); err != nil {
		t.Fatalf("sidecar: %v", err)
	}
	list, err := store.List(context.Background(), "a/")
	if err != nil || len(list) != 1 || list[0].Metadata["k"] != "v" {
		t.Fatalf("list: %v %+v", err, list)
	}
}

func TestStore_DefaultRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := New(""); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat("blobdata"); err != nil {
		t.Fatalf("default root not created: %v", err)
	}
}
