// Package auth verifies signed requests. A client signs
// "METHOD;PATH;BASE64(SHA-256(BODY));TIME" with the RSA key of the acting
// user, PATH being the request path without its leading slash, and sends
// the signature and the unix time in headers.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"peerhub/pkg/domain"
)

// Request headers carrying the authentication material.
const (
	HeaderSignature = "infinit-signature"
	HeaderTime      = "infinit-time"
	HeaderUser      = "infinit-user"
)

// DefaultWindow is the accepted distance between the request time and the
// server clock.
const DefaultWindow = 300 * time.Second

// Request is the signed material of an HTTP request.
type Request struct {
	Method    string
	Path      string
	Body      []byte
	Signature string
	Time      string
	// User is the identity the client claims to act as, if any.
	User string
}

// FromHTTP extracts the signed material of r. The body has already been
// read by the caller.
func FromHTTP(r *http.Request, body []byte) Request {
	return Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Body:      body,
		Signature: r.Header.Get(HeaderSignature),
		Time:      r.Header.Get(HeaderTime),
		User:      r.Header.Get(HeaderUser),
	}
}

// StringToSign builds the canonical string of a request.
func StringToSign(method, path string, body []byte, timestamp string) string {
	sum := sha256.Sum256(body)
	return strings.Join([]string{
		method,
		strings.TrimPrefix(path, "/"),
		base64.StdEncoding.EncodeToString(sum[:]),
		timestamp,
	}, ";")
}

// Sign signs a request as key at t and returns the signature and time
// header values.
func Sign(key *rsa.PrivateKey, method, path string, body []byte, t time.Time) (signature, timestamp string, err error) {
	timestamp = strconv.FormatInt(t.Unix(), 10)
	digest := sha256.Sum256([]byte(StringToSign(method, path, body, timestamp)))
	raw, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), timestamp, nil
}

// SignHTTP sets the authentication headers of r acting as user.
func SignHTTP(r *http.Request, user string, key *rsa.PrivateKey, body []byte, t time.Time) error {
	signature, timestamp, err := Sign(key, r.Method, r.URL.Path, body, t)
	if err != nil {
		return err
	}
	r.Header.Set(HeaderSignature, signature)
	r.Header.Set(HeaderTime, timestamp)
	r.Header.Set(HeaderUser, user)
	return nil
}

// Authenticator checks request signatures against a clock.
type Authenticator struct {
	window time.Duration
	now    func() time.Time
}

// New returns an authenticator accepting requests at most window away from
// now. Zero values select DefaultWindow and time.Now.
func New(window time.Duration, now func() time.Time) *Authenticator {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Authenticator{window: window, now: now}
}

// Verify checks that req was signed by key. Every failure wraps
// domain.ErrAuthentication; the wrapped reason is meant for logs only.
func (a *Authenticator) Verify(req Request, key domain.PublicKey) error {
	if req.Signature == "" {
		return fail("missing signature header")
	}
	if req.Time == "" {
		return fail("missing time header")
	}
	unix, err := strconv.ParseInt(req.Time, 10, 64)
	if err != nil {
		return fail("malformed time header %q", req.Time)
	}
	skew := a.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.window {
		return fail("time %s is %s away from server time", req.Time, skew)
	}
	pub, err := key.Parse()
	if err != nil {
		return fail("unusable public key: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return fail("malformed signature: %v", err)
	}
	digest := sha256.Sum256([]byte(StringToSign(req.Method, req.Path, req.Body, req.Time)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return fail("signature mismatch")
	}
	return nil
}

// Identity is a candidate signer. Key resolves its public key lazily so
// unknown users only fail their own attempt.
type Identity struct {
	Name string
	Key  func() (domain.PublicKey, error)
}

// VerifyAny tries the identities in order and returns the name of the first
// one that signed req.
func (a *Authenticator) VerifyAny(req Request, identities ...Identity) (string, error) {
	errs := make([]error, 0, len(identities))
	for _, id := range identities {
		key, err := id.Key()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id.Name, err))
			continue
		}
		if err := a.Verify(req, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id.Name, err))
			continue
		}
		return id.Name, nil
	}
	if len(errs) == 0 {
		return "", fail("no identity to verify")
	}
	return "", fmt.Errorf("%w: %w", domain.ErrAuthentication, errors.Join(errs...))
}

func fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrAuthentication, fmt.Sprintf(format, args...))
}
