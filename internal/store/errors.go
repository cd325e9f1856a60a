package store

import "errors"

// ErrNotFound is returned when the requested record does not exist. The
// trigger-handler path expects and swallows it; the edit path surfaces it.
var ErrNotFound = errors.New("record not found")

// ConstraintError rejects an insert or update that violates the schedule
// data-model invariants. The record is not coerced or persisted.
type ConstraintError struct {
	Err error
}

func (e *ConstraintError) Error() string {
	return "schedule constraint violated: " + e.Err.Error()
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}
