// Package docstoretest holds the behaviour every document store backend
// must exhibit, run by each backend's tests.
package docstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerhub/internal/docstore/core"
)

// Opener returns a fresh, empty store configured with opts.
type Opener func(t *testing.T, opts core.Options) core.Store

// Design is the collection design exercised by the suite: documents carry
// an "owner" scalar and a "members" map.
func Design(version int) core.Design {
	return core.Design{
		Version: version,
		Views: map[string]core.View{
			"per_owner": {Map: func(doc core.Document, emit core.Emit) {
				if owner, ok := doc["owner"].(string); ok {
					emit(owner, doc)
				}
			}},
			"per_member": {Map: func(doc core.Document, emit core.Emit) {
				members, _ := doc["members"].(map[string]any)
				for m := range members {
					emit(m, doc["name"])
				}
			}},
			"size": {
				Map: func(doc core.Document, emit core.Emit) {
					if owner, ok := doc["owner"].(string); ok {
						emit(owner, map[string]any{"count": 1})
					}
				},
				Reduce: func(values []any) any {
					total := 0
					for _, v := range values {
						m, _ := v.(map[string]any)
						switch n := m["count"].(type) {
						case int:
							total += n
						case interface{ Int64() (int64, error) }:
							i, _ := n.Int64()
							total += int(i)
						}
					}
					return map[string]any{"count": total}
				},
			},
		},
		Updates: map[string]core.UpdateFunc{
			"merge": func(stored, args core.Document) (core.Document, error) {
				members, _ := stored["members"].(map[string]any)
				if members == nil {
					members = map[string]any{}
				}
				add, _ := args["members"].(map[string]any)
				for k, v := range add {
					if v == nil {
						delete(members, k)
						continue
					}
					members[k] = v
				}
				stored["members"] = members
				if owner, ok := args["owner"]; ok {
					stored["owner"] = owner
				}
				return stored, nil
			},
		},
	}
}

func doc(name, owner string, members ...string) core.Document {
	m := map[string]any{}
	for _, member := range members {
		m[member] = true
	}
	return core.Document{"name": name, "owner": owner, "members": m}
}

// Run executes the suite against the backend produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open) })
	t.Run("CreateConflict", func(t *testing.T) { testCreateConflict(t, open) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, open) })
	t.Run("UpdateErrors", func(t *testing.T) { testUpdateErrors(t, open) })
	t.Run("PutDelete", func(t *testing.T) { testPutDelete(t, open) })
	t.Run("Views", func(t *testing.T) { testViews(t, open) })
	t.Run("Reduce", func(t *testing.T) { testReduce(t, open) })
	t.Run("Reindex", func(t *testing.T) { testReindex(t, open) })
	t.Run("Quota", func(t *testing.T) { testQuota(t, open) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, open) })
}

func collection(t *testing.T, s core.Store, name string) core.Collection {
	t.Helper()
	c, err := s.Collection(context.Background(), name, Design(1))
	require.NoError(t, err)
	return c
}

func testCreateGet(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{}), "things")

	require.NoError(t, c.Create(ctx, "a", doc("a", "alice", "bob")))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", got["owner"])
	assert.Equal(t, map[string]any{"bob": true}, got["members"])

	got["owner"] = "mallory"
	again, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", again["owner"])

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testCreateConflict(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{}), "things")

	require.NoError(t, c.Create(ctx, "a", doc("a", "alice")))
	err := c.Create(ctx, "a", doc("a", "bob"))
	assert.ErrorIs(t, err, core.ErrConflict)

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", got["owner"])
}

func testUpdateMerges(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{}), "things")
	require.NoError(t, c.Create(ctx, "a", doc("a", "alice", "bob")))

	updated, err := c.Update(ctx, "a", "merge", core.Document{"members": map[string]any{"carol": true, "bob": nil}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"carol": true}, updated["members"])

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"carol": true}, got["members"])
}

func testUpdateErrors(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{}), "things")

	_, err := c.Update(ctx, "missing", "merge", core.Document{})
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, c.Create(ctx, "a", doc("a", "alice")))
	_, err = c.Update(ctx, "a", "nope", core.Document{})
	assert.ErrorIs(t, err, core.ErrUnknownHandler)
}

func testPutDelete(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{}), "things")

	require.NoError(t, c.Put(ctx, "a", doc("a", "alice")))
	require.NoError(t, c.Put(ctx, "a", doc("a", "bob")))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "bob", got["owner"])

	rows, err := c.Query(ctx, "per_owner", "alice")
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, c.Delete(ctx, "a"))
	assert.ErrorIs(t, c.Delete(ctx, "a"), core.ErrNotFound)
	rows, err = c.Query(ctx, "per_owner", "bob")
	require.NoError(t, err)
	assert.Empty(t, rows)

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testViews(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{}), "things")
	require.NoError(t, c.Create(ctx, "b", doc("b", "alice", "carol")))
	require.NoError(t, c.Create(ctx, "a", doc("a", "alice", "bob", "carol")))
	require.NoError(t, c.Create(ctx, "c", doc("c", "dave")))

	rows, err := c.Query(ctx, "per_owner", "alice")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "b", rows[1].ID)
	assert.Equal(t, "alice", rows[0].Value.(map[string]any)["owner"])

	rows, err = c.Query(ctx, "per_member", "carol", "bob")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "bob", rows[0].Key)

	_, err = c.Update(ctx, "c", "merge", core.Document{"members": map[string]any{"carol": true}})
	require.NoError(t, err)
	rows, err = c.Query(ctx, "per_member", "carol")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	all, err := c.Query(ctx, "per_owner")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = c.Query(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrUnknownView)

	docs, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0]["name"])
}

func testReduce(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{}), "things")
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Create(ctx, fmt.Sprintf("a%d", i), doc("x", "alice")))
	}
	require.NoError(t, c.Create(ctx, "b", doc("x", "bob")))

	rows, err := c.Reduce(ctx, "size")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].Key)
	assert.Equal(t, map[string]any{"count": 3}, rows[0].Value)

	rows, err = c.Reduce(ctx, "size", "bob")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"count": 1}, rows[0].Value)

	_, err = c.Reduce(ctx, "per_owner")
	assert.ErrorIs(t, err, core.ErrUnknownView)
}

func testReindex(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t, core.Options{})
	c := collection(t, s, "things")
	require.NoError(t, c.Create(ctx, "a", doc("a", "alice")))

	design := Design(2)
	design.Views["per_name"] = core.View{Map: func(doc core.Document, emit core.Emit) {
		if name, ok := doc["name"].(string); ok {
			emit(name, nil)
		}
	}}
	c2, err := s.Collection(ctx, "things", design)
	require.NoError(t, err)

	rows, err := c2.Query(ctx, "per_name", "a")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)
	assert.Nil(t, rows[0].Value)
}

func testQuota(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{MaxDocumentBytes: 128}), "things")
	require.NoError(t, c.Create(ctx, "a", doc("a", "alice")))

	members := map[string]any{}
	for i := 0; i < 20; i++ {
		members[fmt.Sprintf("member-%02d", i)] = true
	}
	_, err := c.Update(ctx, "a", "merge", core.Document{"members": members})
	assert.ErrorIs(t, err, core.ErrPaymentRequired)

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got["members"])

	big := doc("b", "alice")
	big["members"] = members
	assert.ErrorIs(t, c.Create(ctx, "b", big), core.ErrPaymentRequired)
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testConcurrentUpdates(t *testing.T, open Opener) {
	ctx := context.Background()
	c := collection(t, open(t, core.Options{UpdateRetries: 1000}), "things")
	require.NoError(t, c.Create(ctx, "a", doc("a", "alice")))

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Update(ctx, "a", "merge", core.Document{"members": map[string]any{fmt.Sprintf("m%02d", i): true}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got["members"], writers)
}
