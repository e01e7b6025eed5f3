package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchCategories(t *testing.T) {
	nf := fmt.Errorf("lookup: %w", NotFoundError{Entity: EntityNetwork, Name: "alice/net"})
	assert.ErrorIs(t, nf, ErrNotFound)
	assert.NotErrorIs(t, nf, ErrDuplicate)

	var typed NotFoundError
	assert.True(t, errors.As(nf, &typed))
	assert.Equal(t, "network/not_found", typed.Code())

	assert.ErrorIs(t, DuplicateError{Entity: EntityVolume}, ErrDuplicate)
	assert.Equal(t, "volume/conflict", DuplicateError{Entity: EntityVolume}.Code())
	assert.ErrorIs(t, MissingFieldError{Entity: EntityUser, Field: "name"}, ErrValidation)
	assert.ErrorIs(t, InvalidFormatError{Entity: EntityUser, Field: "email"}, ErrValidation)
	assert.Equal(t, "missing field name (object user)", MissingFieldError{Entity: EntityUser, Field: "name"}.Error())
}
