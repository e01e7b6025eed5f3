package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerhub/pkg/domain"
)

var serverNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	return k
}

func signed(t *testing.T, key *rsa.PrivateKey, body string, at time.Time) Request {
	t.Helper()
	sig, ts, err := Sign(key, "PUT", "/networks/alice/net", []byte(body), at)
	require.NoError(t, err)
	return Request{Method: "PUT", Path: "/networks/alice/net", Body: []byte(body), Signature: sig, Time: ts}
}

func TestStringToSignDropsLeadingSlash(t *testing.T) {
	got := StringToSign("GET", "/users/alice", nil, "1700000000")
	assert.Equal(t, "GET;users/alice;47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=;1700000000", got)
}

func TestVerifyClockWindow(t *testing.T) {
	key := newKey(t)
	pub := domain.NewPublicKey(&key.PublicKey)
	a := New(0, func() time.Time { return serverNow })

	for _, tc := range []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"now", 0, true},
		{"299s past", -299 * time.Second, true},
		{"299s future", 299 * time.Second, true},
		{"301s past", -301 * time.Second, false},
		{"301s future", 301 * time.Second, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := a.Verify(signed(t, key, `{"a":1}`, serverNow.Add(tc.offset)), pub)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrAuthentication)
			}
		})
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	key := newKey(t)
	pub := domain.NewPublicKey(&key.PublicKey)
	a := New(0, func() time.Time { return serverNow })
	base := signed(t, key, `{"name":"alice/net"}`, serverNow)
	require.NoError(t, a.Verify(base, pub))

	body := base
	body.Body = []byte(`{"name":"alice/nes"}`)
	assert.ErrorIs(t, a.Verify(body, pub), domain.ErrAuthentication)

	path := base
	path.Path = "/networks/alice/other"
	assert.ErrorIs(t, a.Verify(path, pub), domain.ErrAuthentication)

	method := base
	method.Method = "DELETE"
	assert.ErrorIs(t, a.Verify(method, pub), domain.ErrAuthentication)

	moved := base
	moved.Time = strconv.FormatInt(serverNow.Unix()+1, 10)
	assert.ErrorIs(t, a.Verify(moved, pub), domain.ErrAuthentication)

	other := newKey(t)
	assert.ErrorIs(t, a.Verify(base, domain.NewPublicKey(&other.PublicKey)), domain.ErrAuthentication)
}

func TestVerifyMalformedRequests(t *testing.T) {
	key := newKey(t)
	pub := domain.NewPublicKey(&key.PublicKey)
	a := New(0, func() time.Time { return serverNow })
	base := signed(t, key, "", serverNow)

	for name, mutate := range map[string]func(*Request){
		"no signature":   func(r *Request) { r.Signature = "" },
		"no time":        func(r *Request) { r.Time = "" },
		"bad time":       func(r *Request) { r.Time = "yesterday" },
		"bad signature":  func(r *Request) { r.Signature = "***" },
		"truncated sign": func(r *Request) { r.Signature = r.Signature[:12] },
	} {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			assert.ErrorIs(t, a.Verify(req, pub), domain.ErrAuthentication)
		})
	}
	assert.ErrorIs(t, a.Verify(base, domain.PublicKey{}), domain.ErrAuthentication)
}

func TestVerifyAcceptsSubjectPublicKeyInfo(t *testing.T) {
	key := newKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := domain.PublicKey{RSA: base64.StdEncoding.EncodeToString(der)}
	a := New(0, func() time.Time { return serverNow })
	assert.NoError(t, a.Verify(signed(t, key, "x", serverNow), pub))
}

func TestVerifyAnyFallsBackInOrder(t *testing.T) {
	owner, invitee := newKey(t), newKey(t)
	a := New(0, func() time.Time { return serverNow })
	req := signed(t, invitee, "{}", serverNow)

	var tried []string
	identity := func(name string, k *rsa.PrivateKey) Identity {
		return Identity{Name: name, Key: func() (domain.PublicKey, error) {
			tried = append(tried, name)
			return domain.NewPublicKey(&k.PublicKey), nil
		}}
	}
	missing := Identity{Name: "ghost", Key: func() (domain.PublicKey, error) {
		tried = append(tried, "ghost")
		return domain.PublicKey{}, domain.NotFoundError{Entity: domain.EntityUser, Name: "ghost"}
	}}

	name, err := a.VerifyAny(req, missing, identity("owner", owner), identity("invitee", invitee), identity("late", owner))
	require.NoError(t, err)
	assert.Equal(t, "invitee", name)
	assert.Equal(t, []string{"ghost", "owner", "invitee"}, tried)

	_, err = a.VerifyAny(req, identity("owner", owner))
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	_, err = a.VerifyAny(req)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestSignHTTPRoundTrip(t *testing.T) {
	key := newKey(t)
	body := []byte(`{"user":"bob"}`)
	r := httptest.NewRequest("PUT", "/networks/alice/net/passports/bob", bytes.NewReader(body))
	require.NoError(t, SignHTTP(r, "alice", key, body, serverNow))
	assert.Equal(t, "alice", r.Header.Get(HeaderUser))

	req := FromHTTP(r, body)
	assert.Equal(t, "alice", req.User)
	a := New(time.Minute, func() time.Time { return serverNow.Add(59 * time.Second) })
	assert.NoError(t, a.Verify(req, domain.NewPublicKey(&key.PublicKey)))
}
