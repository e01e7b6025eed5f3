// Package blobtest holds the conformance tests every archive backend runs.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"peerhub/internal/blob/core"
)

// Opener returns an empty store.
type Opener func(t *testing.T) core.Store

// Run exercises the archive contract against stores returned by open.
func Run(t *testing.T, open Opener) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, open(t)) })
	t.Run("WriteOnce", func(t *testing.T) { testWriteOnce(t, open(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, open(t)) })
	t.Run("ListPrefix", func(t *testing.T) { testListPrefix(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
}

func put(t *testing.T, s core.Store, key, body string, opts core.PutOptions) core.Info {
	t.Helper()
	info, err := s.Put(context.Background(), key, bytes.NewReader([]byte(body)), opts)
	if err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
	return info
}

func testPutGet(t *testing.T, s core.Store) {
	info := put(t, s, "crash-reports/1/client.dump", "stack", core.PutOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"user": "alice"},
	})
	if info.Key != "crash-reports/1/client.dump" || info.Size != 5 {
		t.Fatalf("unexpected info %+v", info)
	}
	got, rc, err := s.Get(context.Background(), "crash-reports/1/client.dump")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != "stack" {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/octet-stream" {
		t.Fatalf("content type = %q", got.ContentType)
	}
}

func testWriteOnce(t *testing.T, s core.Store) {
	put(t, s, "k", "first", core.PutOptions{})
	_, err := s.Put(context.Background(), "k", bytes.NewReader([]byte("second")), core.PutOptions{})
	if !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "first" {
		t.Fatalf("object overwritten: %q", body)
	}
}

func testMissing(t *testing.T, s core.Store) {
	if _, _, err := s.Get(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testListPrefix(t *testing.T, s core.Store) {
	put(t, s, "crash-reports/a/client.dump", "1", core.PutOptions{})
	put(t, s, "crash-reports/a/client.log", "22", core.PutOptions{})
	put(t, s, "crash-reports/b/client.dump", "333", core.PutOptions{})
	list, err := s.List(context.Background(), "crash-reports/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "crash-reports/a/client.dump" || list[1].Key != "crash-reports/a/client.log" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := s.List(context.Background(), "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v %+v", err, all)
	}
}

func testDelete(t *testing.T, s core.Store) {
	put(t, s, "k", "v", core.PutOptions{})
	ok, err := s.Delete(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
