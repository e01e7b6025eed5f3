package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerhub/internal/auth"
	"peerhub/internal/blob"
	"peerhub/internal/core"
	"peerhub/internal/docstore"
	"peerhub/pkg/domain"
)

var (
	keysOnce sync.Once
	keyPool  []*rsa.PrivateKey
)

var serverNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	t    *testing.T
	h    *Handler
	keys map[string]*rsa.PrivateKey
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	keysOnce.Do(func() {
		for range 5 {
			k, err := rsa.GenerateKey(rand.Reader, 1024)
			if err != nil {
				panic(err)
			}
			keyPool = append(keyPool, k)
		}
	})
	ctx := context.Background()
	store, err := docstore.Open(ctx, docstore.Config{Driver: docstore.DriverMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	reports, err := blob.Open(ctx, blob.Config{Driver: blob.DriverMemory})
	require.NoError(t, err)

	now := func() time.Time { return serverNow }
	svc, err := core.NewService(ctx, core.Dependencies{
		Store:   store,
		Reports: reports,
		Logger:  zerolog.Nop(),
		Now:     now,
	}, core.DefaultSettings())
	require.NoError(t, err)

	return &testServer{
		t: t,
		h: New(Options{Service: svc, Logger: zerolog.Nop(), Version: "1.2.3"}),
		keys: map[string]*rsa.PrivateKey{
			"alice": keyPool[0],
			"bob":   keyPool[1],
			"carol": keyPool[2],
			"dave":  keyPool[3],
			"hub":   keyPool[4],
		},
	}
}

func (s *testServer) pub(name string) domain.PublicKey {
	return domain.NewPublicKey(&s.keys[name].PublicKey)
}

type response struct {
	status int
	body   map[string]any
	raw    string
}

// do sends a request signed as signer at the server clock. An empty signer
// sends it unsigned.
func (s *testServer) do(method, path string, payload any, signer string, headers ...string) response {
	s.t.Helper()
	return s.doAt(method, path, payload, signer, serverNow, headers...)
}

func (s *testServer) doAt(method, path string, payload any, signer string, at time.Time, headers ...string) response {
	s.t.Helper()
	var body []byte
	switch p := payload.(type) {
	case nil:
	case string:
		body = []byte(p)
	default:
		var err error
		body, err = json.Marshal(p)
		require.NoError(s.t, err)
	}
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	if signer != "" {
		require.NoError(s.t, auth.SignHTTP(r, signer, s.keys[signer], body, at))
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)
	out := response{status: w.Code, raw: w.Body.String()}
	_ = json.Unmarshal(w.Body.Bytes(), &out.body)
	return out
}

func (s *testServer) createUser(name string) {
	s.t.Helper()
	res := s.do(http.MethodPut, "/users/"+name, map[string]any{"name": name, "public_key": s.pub(name)}, "")
	require.Equal(s.t, http.StatusCreated, res.status, res.raw)
}

func (s *testServer) createNetwork(owner, name string) {
	s.t.Helper()
	res := s.do(http.MethodPut, "/networks/"+owner+"/"+name, map[string]any{
		"name":      owner + "/" + name,
		"owner":     s.pub(owner),
		"consensus": map[string]any{"type": "paxos"},
		"overlay":   map[string]any{"type": "kelips"},
	}, owner)
	require.Equal(s.t, http.StatusCreated, res.status, res.raw)
}

func (s *testServer) passport(invitee, network string, extra map[string]any) map[string]any {
	p := map[string]any{"user": s.pub(invitee), "network": network, "signature": "sig-" + invitee}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func TestVersion(t *testing.T) {
	s := newServer(t)
	res := s.do(http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "1.2.3", res.body["version"])
	assert.NotEmpty(t, s.do(http.MethodGet, "/nowhere", nil, "").body["error"])
}

func TestNetworkPassportEndpointsFlow(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")
	s.createUser("bob")

	again := s.do(http.MethodPut, "/users/alice", map[string]any{"name": "alice", "public_key": s.pub("alice")}, "")
	assert.Equal(t, http.StatusOK, again.status)

	s.createNetwork("alice", "net")
	net := s.do(http.MethodGet, "/networks/alice/net", nil, "")
	require.Equal(t, http.StatusOK, net.status)
	assert.Equal(t, "alice/net", net.body["name"])
	assert.Equal(t, domain.DefaultNetworkVersion, net.body["version"])

	res := s.do(http.MethodPut, "/networks/alice/net/passports/bob", s.passport("bob", "alice/net", nil), "alice")
	require.Equal(t, http.StatusCreated, res.status, res.raw)

	got := s.do(http.MethodGet, "/networks/alice/net/passports/bob", nil, "")
	require.Equal(t, http.StatusOK, got.status, got.raw)
	assert.Equal(t, "sig-bob", got.body["signature"])
	assert.Equal(t, true, got.body["allow_write"])
	assert.Equal(t, false, got.body["allow_sign"])

	endpoints := s.do(http.MethodGet, "/networks/alice/net/endpoints", nil, "")
	require.Equal(t, http.StatusOK, endpoints.status)
	assert.Empty(t, endpoints.body)

	res = s.do(http.MethodPut, "/networks/alice/net/endpoints/bob/node1",
		map[string]any{"port": 4242, "addresses": []string{"10.0.0.2"}}, "bob")
	require.Equal(t, http.StatusCreated, res.status, res.raw)
	endpoints = s.do(http.MethodGet, "/networks/alice/net/endpoints", nil, "")
	node := endpoints.body["bob"].(map[string]any)["node1"].(map[string]any)
	assert.EqualValues(t, 4242, node["port"])

	members := s.do(http.MethodGet, "/networks/alice/net/users", nil, "")
	require.Equal(t, http.StatusOK, members.status)
	assert.Len(t, members.body["users"], 2)

	networks := s.do(http.MethodGet, "/users/bob/networks", nil, "bob")
	require.Equal(t, http.StatusOK, networks.status, networks.raw)
	assert.Len(t, networks.body["networks"], 1)

	res = s.do(http.MethodDelete, "/networks/alice/net/passports/bob", nil, "bob")
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/networks/alice/net/passports/bob", nil, "alice").status)
}

func TestAuthenticationFailures(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")
	s.createUser("bob")
	body := map[string]any{
		"name": "alice/net", "owner": s.pub("alice"),
		"consensus": map[string]any{}, "overlay": map[string]any{},
	}

	for name, res := range map[string]response{
		"unsigned":     s.do(http.MethodPut, "/networks/alice/net", body, ""),
		"wrong signer": s.do(http.MethodPut, "/networks/alice/net", body, "bob"),
		"stale":        s.doAt(http.MethodPut, "/networks/alice/net", body, "alice", serverNow.Add(-301*time.Second)),
		"future":       s.doAt(http.MethodPut, "/networks/alice/net", body, "alice", serverNow.Add(301*time.Second)),
	} {
		assert.Equal(t, http.StatusForbidden, res.status, name)
		assert.Equal(t, "user/unauthorized", res.body["error"], name)
	}
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/networks/alice/net", nil, "").status)

	res := s.doAt(http.MethodPut, "/networks/alice/net", body, "alice", serverNow.Add(-299*time.Second))
	assert.Equal(t, http.StatusCreated, res.status, res.raw)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")

	res := s.do(http.MethodGet, "/users/nobody", nil, "")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "user/not_found", res.body["error"])
	assert.Equal(t, "nobody", res.body["name"])

	res = s.do(http.MethodPut, "/users/alice", map[string]any{"name": "alice", "public_key": s.pub("bob")}, "")
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "user/conflict", res.body["error"])
	assert.Equal(t, "alice", res.body["id"])

	res = s.do(http.MethodPut, "/users/bob", map[string]any{"name": "bobby", "public_key": s.pub("bob")}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "user/invalid_format/name", res.body["error"])

	res = s.do(http.MethodPut, "/users/bob", map[string]any{"name": "bob"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "user/missing_field/public_key", res.body["error"])

	res = s.do(http.MethodPut, "/users/bob", `{"name":`, "")
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = s.do(http.MethodGet, "/users/alice", nil, "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "alice", res.body["name"])
	assert.NotContains(t, res.body, "emails")
}

func TestUserLookups(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")

	short, err := s.pub("alice").ShortHash()
	require.NoError(t, err)
	res := s.do(http.MethodGet, "/users/by_short_key_hash/"+strings.TrimPrefix(short, "#"), nil, "")
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Equal(t, "alice", res.body["name"])

	res = s.do(http.MethodGet, "/users", nil, "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Len(t, res.body["users"], 1)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/users/alice/private", nil, "").status)
}

func TestPrivateViewAndArchiveNeedDelegate(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")
	s.createUser("hub")

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/users/alice/private", nil, "alice").status)
	res := s.do(http.MethodGet, "/users/alice/private", nil, "hub")
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Equal(t, "alice", res.body["name"])

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/users/alice/archive", nil, "alice").status)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/users/alice/archive", nil, "hub").status)

	res = s.do(http.MethodPost, "/users/alice/archive", nil, "hub")
	require.Equal(t, http.StatusCreated, res.status, res.raw)
	assert.Len(t, res.body["versions"], 1)
	res = s.do(http.MethodPost, "/users/alice/archive", nil, "hub")
	require.Equal(t, http.StatusCreated, res.status, res.raw)
	assert.Len(t, res.body["versions"], 2)

	res = s.do(http.MethodGet, "/users/alice/archive", nil, "hub")
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Equal(t, "alice", res.body["name"])
	versions := res.body["versions"].([]any)
	require.Len(t, versions, 2)
	assert.Equal(t, "alice", versions[0].(map[string]any)["name"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/users/nobody/archive", nil, "hub").status)
}

func TestEmailConfirmationHidesCodes(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")

	res := s.do(http.MethodPut, "/users/alice/emails/alice@example.com", nil, "alice")
	require.Equal(t, http.StatusOK, res.status, res.raw)

	s.createUser("hub")
	private := s.do(http.MethodGet, "/users/alice/private", nil, "hub")
	assert.Equal(t, map[string]any{"alice@example.com": false}, private.body["emails"])

	res = s.do(http.MethodPost, "/users/alice/emails/alice@example.com/confirm", map[string]any{"confirmation_code": "guess"}, "")
	assert.Equal(t, http.StatusForbidden, res.status)
	res = s.do(http.MethodPost, "/users/alice/emails/alice@example.com/confirm", map[string]any{}, "")
	assert.Equal(t, "user/missing_field/confirmation_code", res.body["error"])
}

func TestDelegatedCertifier(t *testing.T) {
	s := newServer(t)
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		s.createUser(name)
	}
	s.createNetwork("alice", "net")
	res := s.do(http.MethodPut, "/networks/alice/net/passports/carol",
		s.passport("carol", "alice/net", map[string]any{"allow_sign": true}), "alice")
	require.Equal(t, http.StatusCreated, res.status, res.raw)
	res = s.do(http.MethodPut, "/networks/alice/net/passports/dave", s.passport("dave", "alice/net", nil), "alice")
	require.Equal(t, http.StatusCreated, res.status, res.raw)

	uncertified := s.passport("bob", "alice/net", nil)
	res = s.do(http.MethodPut, "/networks/alice/net/passports/bob", uncertified, "carol")
	assert.Equal(t, http.StatusForbidden, res.status, "certifier field is required")

	certified := s.passport("bob", "alice/net", map[string]any{"certifier": s.pub("carol")})
	res = s.do(http.MethodPut, "/networks/alice/net/passports/bob", certified, "carol")
	require.Equal(t, http.StatusCreated, res.status, res.raw)

	byDave := s.passport("bob", "alice/net", map[string]any{"certifier": s.pub("dave")})
	res = s.do(http.MethodPut, "/networks/alice/net/passports/bob", byDave, "dave")
	assert.Equal(t, http.StatusForbidden, res.status)
	assert.Equal(t, "user/forbidden", res.body["error"])
}

func TestDriveInvitations(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")
	s.createUser("bob")
	res := s.do(http.MethodPut, "/drives/alice/docs", map[string]any{
		"name": "alice/docs", "owner": "alice", "network": "alice/net", "volume": "alice/vol",
	}, "alice")
	require.Equal(t, http.StatusCreated, res.status, res.raw)

	invite := map[string]any{"permissions": "rw"}
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPut, "/drives/alice/docs/invitations/bob", invite, "alice").status)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/drives/alice/docs/invitations/bob", invite, "alice").status)

	pending := s.do(http.MethodGet, "/users/bob/drives?status=pending", nil, "bob")
	require.Equal(t, http.StatusOK, pending.status, pending.raw)
	assert.Len(t, pending.body["drives"], 1)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/drives/alice/docs/invitations/bob", "{}", "bob").status)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/drives/alice/docs/invitations/bob", "{}", "bob").status)

	res = s.do(http.MethodPut, "/drives/alice/docs/invitations/bob", invite, "alice")
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "invitation/already_confirmed", res.body["error"])

	bulk := s.do(http.MethodPut, "/drives/alice/docs/invitations", map[string]any{
		"bob":             invite,
		"new@example.com": invite,
	}, "alice")
	require.Equal(t, http.StatusOK, bulk.status, bulk.raw)
	assert.Equal(t, []any{"new@example.com"}, bulk.body["invited"])

	res = s.do(http.MethodPut, "/drives/alice/docs/invitations/carol",
		map[string]any{"permissions": "rw", "status": "bogus"}, "alice")
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "invitation/invalid_format/status", res.body["error"])
	res = s.do(http.MethodPut, "/drives/alice/docs/invitations/carol",
		map[string]any{"permissions": "rw", "status": "ok"}, "alice")
	assert.Equal(t, http.StatusCreated, res.status, res.raw)

	drive := s.do(http.MethodGet, "/drives/alice/docs", nil, "")
	users := drive.body["users"].(map[string]any)
	assert.Equal(t, "ok", users["bob"].(map[string]any)["status"])
	assert.Equal(t, "pending", users["new@example.com"].(map[string]any)["status"])
	assert.Equal(t, "pending", users["carol"].(map[string]any)["status"])
}

func TestPairingOverHTTP(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")

	res := s.do(http.MethodPut, "/users/alice/pairing", map[string]any{"passphrase_hash": "h", "data": map[string]any{"k": 1}}, "alice")
	require.Equal(t, http.StatusCreated, res.status, res.raw)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users/alice/pairing/status", nil, "alice").status)

	res = s.do(http.MethodGet, "/users/alice/pairing", nil, "alice", PairingHeader, "nope")
	assert.Equal(t, http.StatusForbidden, res.status)
	assert.Equal(t, "pairing/passphrase_mismatch", res.body["error"])

	res = s.do(http.MethodGet, "/users/alice/pairing", nil, "alice", PairingHeader, "h")
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Equal(t, map[string]any{"k": float64(1)}, res.body["data"])
	assert.NotContains(t, res.body, "passphrase_hash")

	res = s.do(http.MethodGet, "/users/alice/pairing", nil, "alice", PairingHeader, "h")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "pairing/not_found", res.body["error"])
}

func TestCrashReports(t *testing.T) {
	s := newServer(t)
	s.createUser("hub")
	s.createUser("alice")

	res := s.do(http.MethodPost, "/crash/report", map[string]any{
		"platform": "linux",
		"dump":     base64.StdEncoding.EncodeToString([]byte("frame 0")),
	}, "")
	require.Equal(t, http.StatusCreated, res.status, res.raw)
	id, _ := res.body["id"].(string)
	require.NotEmpty(t, id)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/crash/report/"+id, nil, "alice").status)
	files := s.do(http.MethodGet, "/crash/report/"+id, nil, "hub")
	require.Equal(t, http.StatusOK, files.status, files.raw)
	require.Len(t, files.body["files"], 1)
	assert.Equal(t, "crash-reports/"+id+"/client.dump", files.body["files"].([]any)[0].(map[string]any)["key"])

	res = s.do(http.MethodPost, "/crash/report", map[string]any{"dump": "%%%"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
}

func TestPurgeOverHTTP(t *testing.T) {
	s := newServer(t)
	s.createUser("alice")
	s.createNetwork("alice", "net")
	res := s.do(http.MethodPut, "/volumes/alice/vol", map[string]any{"name": "alice/vol", "network": "alice/net"}, "alice")
	require.Equal(t, http.StatusCreated, res.status, res.raw)

	res = s.do(http.MethodDelete, "/users/alice?purge=true", nil, "alice")
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Contains(t, res.body["removed"], "volume alice/vol")
	assert.Contains(t, res.body["removed"], "network alice/net")
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/volumes/alice/vol", nil, "").status)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/users/alice", nil, "").status)
}

func TestMetricsAreExposed(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodGet, "/users/nobody", nil, "")
	res := s.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.raw, `peerhub_http_requests_total{method="GET",route="/users/{name}",status="404"}`)
}
