package domain

import (
	"errors"
	"fmt"
)

// Shared error taxonomy for the order core. Callers classify with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
)

// ValidationError reports bad input. Nothing is persisted when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

// StateError describes a rejected state machine transition.
type StateError struct {
	From   string
	To     string
	Reason string
}

func (e StateError) Error() string {
	if e.From == "" && e.To == "" {
		return e.Reason
	}
	return fmt.Sprintf("cannot move order from %s to %s: %s", e.From, e.To, e.Reason)
}

func (e StateError) Unwrap() error { return ErrInvalidState }
