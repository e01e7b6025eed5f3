package domain

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PublicKey is the wire form of an RSA public key: base64 encoded DER.
type PublicKey struct {
	RSA string `json:"rsa"`
}

// IsZero reports whether no key material is set.
func (k PublicKey) IsZero() bool {
	return k.RSA == ""
}

// Equal compares the encoded key material.
func (k PublicKey) Equal(o PublicKey) bool {
	return k.RSA == o.RSA
}

// DER decodes the key material.
func (k PublicKey) DER() ([]byte, error) {
	if k.IsZero() {
		return nil, errors.New("empty public key")
	}
	der, err := base64.StdEncoding.DecodeString(k.RSA)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return der, nil
}

// ID is the first eight characters of the URL-safe base64 SHA-256 digest
// of the DER encoding.
func (k PublicKey) ID() (string, error) {
	der, err := k.DER()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return base64.URLEncoding.EncodeToString(sum[:])[:8], nil
}

// ShortHash is "#" followed by the first six hex characters of the SHA-256
// digest of the DER encoding.
func (k PublicKey) ShortHash() (string, error) {
	der, err := k.DER()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return "#" + hex.EncodeToString(sum[:])[:6], nil
}

// Parse returns the RSA key. Both PKCS#1 and SubjectPublicKeyInfo DER
// encodings are accepted.
func (k PublicKey) Parse() (*rsa.PublicKey, error) {
	der, err := k.DER()
	if err != nil {
		return nil, err
	}
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return pub, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}

// MarshalJSON encodes a zero key as null so it reads as an absent field.
func (k PublicKey) MarshalJSON() ([]byte, error) {
	if k.IsZero() {
		return []byte("null"), nil
	}
	type wire PublicKey
	return json.Marshal(wire(k))
}

// NewPublicKey encodes an RSA key in the PKCS#1 wire form.
func NewPublicKey(pub *rsa.PublicKey) PublicKey {
	return PublicKey{RSA: base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PublicKey(pub))}
}

// QualifiedName is the "owner/name" identity shared by networks, volumes,
// drives and key-value stores.
type QualifiedName struct {
	Owner string
	Name  string
}

// ParseQualifiedName splits "owner/name".
func ParseQualifiedName(s string) (QualifiedName, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return QualifiedName{}, fmt.Errorf("malformed qualified name %q", s)
	}
	return QualifiedName{Owner: owner, Name: name}, nil
}

// NewQualifiedName builds a name from its components.
func NewQualifiedName(owner, name string) QualifiedName {
	return QualifiedName{Owner: owner, Name: name}
}

func (q QualifiedName) String() string {
	if q.Owner == "" && q.Name == "" {
		return ""
	}
	return q.Owner + "/" + q.Name
}

// IsZero reports whether both components are empty.
func (q QualifiedName) IsZero() bool {
	return q.Owner == "" && q.Name == ""
}

// MarshalJSON encodes the name as a single string.
func (q QualifiedName) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON decodes "owner/name".
func (q *QualifiedName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*q = QualifiedName{}
		return nil
	}
	parsed, err := ParseQualifiedName(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Confirmation is the state of an email address on a user record: either
// confirmed or awaiting the given confirmation code.
type Confirmation struct {
	Confirmed bool
	Code      string
}

// Confirmed is the state of a verified address.
var Confirmed = Confirmation{Confirmed: true}

// Pending returns the state of an address awaiting code.
func Pending(code string) Confirmation {
	return Confirmation{Code: code}
}

// MarshalJSON encodes true for confirmed addresses and the pending code
// otherwise.
func (c Confirmation) MarshalJSON() ([]byte, error) {
	if c.Confirmed {
		return []byte("true"), nil
	}
	if c.Code == "" {
		return []byte("false"), nil
	}
	return json.Marshal(c.Code)
}

// UnmarshalJSON accepts true, false or a pending code.
func (c *Confirmation) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*c = Confirmation{Confirmed: b}
		return nil
	}
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("email confirmation: %w", err)
	}
	*c = Confirmation{Code: code}
	return nil
}
