package domain

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// MaxDescriptionLength bounds free-text descriptions, counted in runes.
const MaxDescriptionLength = 2048

var (
	namePattern  = regexp.MustCompile(`^[a-z0-9_][a-z0-9_.-]{0,127}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Validator checks the document value of a field. Implementations return a
// plain error; the schema wraps it into an InvalidFormatError.
type Validator func(value any) error

// ValidName reports whether s is an acceptable user or object name.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}

// NameValidator accepts a plain name.
func NameValidator(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string")
	}
	if !ValidName(s) {
		return fmt.Errorf("%q is not a valid name", s)
	}
	return nil
}

// QualifiedNameValidator accepts "owner/name" where both parts are valid
// names.
func QualifiedNameValidator(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string")
	}
	q, err := ParseQualifiedName(s)
	if err != nil {
		return err
	}
	if !ValidName(q.Owner) || !ValidName(q.Name) {
		return fmt.Errorf("%q is not a valid name", s)
	}
	return nil
}

// DescriptionValidator bounds the length of a description.
func DescriptionValidator(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string")
	}
	if n := utf8.RuneCountInString(s); n > MaxDescriptionLength {
		return fmt.Errorf("description is %d characters long, at most %d allowed", n, MaxDescriptionLength)
	}
	return nil
}

// EmailValidator accepts a syntactically plausible address.
func EmailValidator(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string")
	}
	if !emailPattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid email", s)
	}
	return nil
}

// PublicKeyValidator accepts a document holding a parseable RSA key.
func PublicKeyValidator(value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("expected an object")
	}
	s, _ := m["rsa"].(string)
	if _, err := (PublicKey{RSA: s}).Parse(); err != nil {
		return err
	}
	return nil
}

// InvitationStatusValidator accepts the statuses an invitation can hold.
func InvitationStatusValidator(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected a string")
	}
	switch InvitationStatus(s) {
	case InvitationPending, InvitationOK:
		return nil
	}
	return fmt.Errorf("%q is not an invitation status", s)
}
