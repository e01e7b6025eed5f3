package index

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerhub/internal/docstore"
	"peerhub/internal/infra/docstore/memory"
	"peerhub/pkg/domain"
)

func open(t *testing.T, name string) docstore.Collection {
	t.Helper()
	c, err := memory.New(docstore.Options{}).Collection(context.Background(), name, Designs()[name])
	require.NoError(t, err)
	return c
}

func keys(rows []docstore.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestUserEmailViewIncludesPrimaryAddress(t *testing.T) {
	ctx := context.Background()
	c := open(t, Users)
	require.NoError(t, c.Create(ctx, "alice", docstore.Document{
		"name":   "alice",
		"email":  "alice@example.com",
		"emails": map[string]any{"alt@example.com": true},
	}))
	require.NoError(t, c.Create(ctx, "bob", docstore.Document{
		"name":   "bob",
		"email":  "bob@example.com",
		"emails": map[string]any{"bob@example.com": "code"},
	}))

	rows, err := c.Query(ctx, PerEmail, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, keys(rows))

	rows, err = c.Query(ctx, PerEmail, "bob@example.com")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = c.Query(ctx, PerEmail)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestNetworkUserKeyViewCoversOwnerAndPassports(t *testing.T) {
	ctx := context.Background()
	c := open(t, Networks)
	require.NoError(t, c.Create(ctx, "alice/net", docstore.Document{
		"name":  "alice/net",
		"owner": map[string]any{"rsa": "KA"},
		"passports": map[string]any{
			"alice": map[string]any{"user": map[string]any{"rsa": "KA"}},
			"bob":   map[string]any{"user": map[string]any{"rsa": "KB"}},
		},
	}))

	rows, err := c.Query(ctx, PerUserKey, "KA")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = c.Query(ctx, PerUserKey, "KB")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice/net"}, keys(rows))

	rows, err = c.Query(ctx, PerInviteeName, "bob")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = c.Query(ctx, PerOwnerKey, "KB")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStatViewSumsAcrossNodes(t *testing.T) {
	ctx := context.Background()
	c := open(t, Networks)
	require.NoError(t, c.Create(ctx, "alice/net", docstore.Document{
		"name": "alice/net",
		"storages": map[string]any{
			"alice": map[string]any{"n1": map[string]any{"usage": 1, "capacity": 10}},
			"bob":   map[string]any{"n2": map[string]any{"usage": 2, "capacity": 20}, "n3": map[string]any{"usage": 3, "capacity": 30}},
		},
	}))
	require.NoError(t, c.Create(ctx, "alice/empty", docstore.Document{"name": "alice/empty"}))

	rows, err := c.Reduce(ctx, Stats, "alice/net")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.Statistics{Usage: 6, Capacity: 60}, DecodeStatistics(rows[0].Value))

	rows, err = c.Reduce(ctx, Stats, "alice/empty")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.Statistics{}, DecodeStatistics(rows[0].Value))
}

func TestSumStatisticsIsOrderIndependent(t *testing.T) {
	a := map[string]any{"usage": json.Number("1"), "capacity": json.Number("10")}
	b := map[string]any{"usage": int64(2), "capacity": int64(20)}
	c := map[string]any{"usage": 3, "capacity": 30}

	left := SumStatistics([]any{SumStatistics([]any{a, b}), c})
	right := SumStatistics([]any{a, SumStatistics([]any{c, b})})

	assert.Equal(t, left, right)
	assert.Equal(t, domain.Statistics{Usage: 6, Capacity: 60}, DecodeStatistics(left))
}

func TestDriveMemberViewIncludesOwnerOnce(t *testing.T) {
	ctx := context.Background()
	c := open(t, Drives)
	require.NoError(t, c.Create(ctx, "alice/docs", docstore.Document{
		"name":    "alice/docs",
		"owner":   "alice",
		"network": "alice/net",
		"volume":  "alice/vol",
		"users": map[string]any{
			"alice":           map[string]any{"status": "ok"},
			"bob":             map[string]any{"status": "pending"},
			"carol@mail.test": map[string]any{"status": "pending"},
		},
	}))

	for _, member := range []string{"alice", "bob", "carol@mail.test"} {
		rows, err := c.Query(ctx, PerMemberName, member)
		require.NoError(t, err)
		assert.Len(t, rows, 1, member)
	}
	rows, err := c.Query(ctx, PerVolumeID, "alice/vol")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpdateHandlersFollowSchema(t *testing.T) {
	ctx := context.Background()
	c := open(t, Drives)
	require.NoError(t, c.Create(ctx, "alice/docs", docstore.Document{
		"name":  "alice/docs",
		"users": map[string]any{"bob": map[string]any{"status": "pending"}},
	}))

	doc, err := c.Update(ctx, "alice/docs", UpdateDiff, docstore.Document{
		"users": map[string]any{"bob": nil, "carol": map[string]any{"status": "pending"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"carol": map[string]any{"status": "pending"}}, doc["users"])

	doc, err = c.Update(ctx, "alice/docs", UpdateOverwrite, docstore.Document{
		"users": map[string]any{"dave": map[string]any{"status": "ok"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"dave": map[string]any{"status": "ok"}}, doc["users"])
}
