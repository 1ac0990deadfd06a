package errors

import (
	"errors"
	"fmt"
)

// Domain errors for the ledger. Business-rule violations are detected before
// any write, so returning one of these means nothing was changed.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInactiveAccount   = errors.New("account is inactive")
	ErrTargetNotFound    = errors.New("target account not found")
	ErrTargetInactive    = errors.New("target account is inactive")
	ErrSameAccount       = errors.New("source and target accounts cannot be the same")
	ErrDuplicateAccount  = errors.New("owner already holds an active account")
)

// Lookup and adapter errors.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrOwnerNotFound      = errors.New("owner not found")
	ErrAccountNumberTaken = errors.New("account number already in use")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrAlreadyRegistered  = errors.New("user is already registered")
	ErrForbidden          = errors.New("caller is not allowed to perform this action")
	ErrUnauthenticated    = errors.New("caller identity missing")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// PersistenceError wraps a storage failure. Any write attempted in the same
// call has been rolled back when this is returned.
type PersistenceError struct {
	Operation string
	Cause     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during '%s': %v", e.Operation, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

func NewPersistenceError(operation string, cause error) error {
	return &PersistenceError{
		Operation: operation,
		Cause:     cause,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrOwnerNotFound)
}

// IsRegistrationConflict reports whether a registration clashed with an
// existing user.
func IsRegistrationConflict(err error) bool {
	return errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrAlreadyRegistered)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsPersistenceError(err error) bool {
	var persistenceErr *PersistenceError
	return errors.As(err, &persistenceErr)
}

// IsBusinessRule reports whether err is one of the rule violations a caller
// can fix by changing its request.
func IsBusinessRule(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrInsufficientFunds,
		ErrInactiveAccount,
		ErrTargetNotFound,
		ErrTargetInactive,
		ErrSameAccount,
		ErrDuplicateAccount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
