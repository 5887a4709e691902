package state

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned while another input for the same chat is in flight.
	ErrBusy = errors.New("state: chat is busy")
	// ErrUnknownFlow is returned when starting a flow that was never registered.
	ErrUnknownFlow = errors.New("state: unknown flow")
	// ErrCorruptSession marks a stored session that no longer matches its flow.
	ErrCorruptSession = errors.New("state: corrupt session")
)

// ValidationError rejects an input without changing the session.
// Expected describes the accepted format and is shown to the user.
type ValidationError struct {
	Field    string
	Expected string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Expected
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Expected)
}

// Invalid builds a ValidationError.
func Invalid(field, expected string) *ValidationError {
	return &ValidationError{Field: field, Expected: expected}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
