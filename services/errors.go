package services

import "errors"

// ErrCredentialMissing is returned when an operator dispatches before
// configuring a mailbox.
var ErrCredentialMissing = errors.New("mailbox credentials not configured")

// ValidationError is a user-facing rejection raised before any side effect.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }
