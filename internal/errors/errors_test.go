package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBusinessRule(t *testing.T) {
	for _, err := range []error{
		ErrInvalidAmount,
		ErrInsufficientFunds,
		ErrInactiveAccount,
		ErrTargetNotFound,
		ErrTargetInactive,
		ErrSameAccount,
		ErrDuplicateAccount,
	} {
		assert.True(t, IsBusinessRule(err), err.Error())
		assert.True(t, IsBusinessRule(fmt.Errorf("wrapped: %w", err)), err.Error())
	}

	assert.False(t, IsBusinessRule(ErrAccountNotFound))
	assert.False(t, IsBusinessRule(NewPersistenceError("commit", errors.New("boom"))))
	assert.False(t, IsBusinessRule(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrAccountNotFound))
	assert.True(t, IsNotFound(ErrTargetNotFound))
	assert.True(t, IsNotFound(ErrOwnerNotFound))
	assert.False(t, IsNotFound(ErrInsufficientFunds))
}

func TestIsRegistrationConflict(t *testing.T) {
	assert.True(t, IsRegistrationConflict(ErrUsernameTaken))
	assert.True(t, IsRegistrationConflict(fmt.Errorf("insert user: %w", ErrAlreadyRegistered)))
	assert.False(t, IsRegistrationConflict(ErrDuplicateAccount))
	assert.False(t, IsBusinessRule(ErrUsernameTaken))
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewPersistenceError("adjust balance", cause)

	assert.True(t, IsPersistenceError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "persistence error during 'adjust balance': connection reset", err.Error())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("amount", "is required")

	assert.True(t, IsValidationError(err))
	assert.True(t, IsValidationError(fmt.Errorf("decode: %w", err)))
	assert.False(t, IsValidationError(ErrInvalidAmount))
	assert.Equal(t, "validation error on field 'amount': is required", err.Error())
}
