package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the service and transport layers.
var (
	ErrAuthentication     = errors.New("authentication failed")
	ErrForbidden          = errors.New("forbidden")
	ErrNotInvited         = errors.New("not invited")
	ErrAlreadyConfirmed   = errors.New("already confirmed")
	ErrPaymentRequired    = errors.New("payment required")
	ErrNoLongerAvailable  = errors.New("no longer available")
	ErrPassphraseMismatch = errors.New("passphrase mismatch")
	ErrUpdateConflict     = errors.New("concurrent update conflict")
)

// Categories matched by the typed errors below through errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrValidation = errors.New("invalid record")
)

// NotFoundError reports a lookup on a missing record.
type NotFoundError struct {
	Entity EntityType
	Name   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Name)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Code is the machine readable error code.
func (e NotFoundError) Code() string {
	return string(e.Entity) + "/not_found"
}

// DuplicateError reports a create on an existing identity.
type DuplicateError struct {
	Entity EntityType
	Name   string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Name)
}

// Is matches ErrDuplicate.
func (e DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Code is the machine readable error code.
func (e DuplicateError) Code() string {
	return string(e.Entity) + "/conflict"
}

// MissingFieldError reports a mandatory field absent from an inbound record.
type MissingFieldError struct {
	Entity EntityType
	Field  string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %s (object %s)", e.Field, e.Entity)
}

// Is matches ErrValidation.
func (e MissingFieldError) Is(target error) bool { return target == ErrValidation }

// Code is the machine readable error code.
func (e MissingFieldError) Code() string {
	return string(e.Entity) + "/missing_field/" + e.Field
}

// InvalidFormatError reports a field rejected by its validator.
type InvalidFormatError struct {
	Entity EntityType
	Field  string
	Reason string
}

func (e InvalidFormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid format for %s (object %s)", e.Field, e.Entity)
	}
	return fmt.Sprintf("invalid format for %s (object %s): %s", e.Field, e.Entity, e.Reason)
}

// Is matches ErrValidation.
func (e InvalidFormatError) Is(target error) bool { return target == ErrValidation }

// Code is the machine readable error code.
func (e InvalidFormatError) Code() string {
	return string(e.Entity) + "/invalid_format/" + e.Field
}
