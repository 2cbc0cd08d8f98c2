package spatialmath

import "fmt"

// ValidationError is returned when a pose is malformed: a non-unit orientation beyond tolerance,
// or non-finite coordinates.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pose %s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
