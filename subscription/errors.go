package subscription

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no subscription exists with the requested id
var ErrNotFound = errors.New("subscription not found")

// ValidationError reports malformed input. Nothing is mutated when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError reports an operation attempted from an incompatible lifecycle state
type StateError struct {
	Op     string
	Status Status
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s subscription in %q state: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("cannot %s subscription in %q state", e.Op, e.Status)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is, or wraps, a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsState reports whether err is, or wraps, a StateError
func IsState(err error) bool {
	var s *StateError
	return errors.As(err, &s)
}
