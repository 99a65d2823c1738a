package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing record.
type ErrNotFound struct {
	Collection Collection
	ID         int
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found", e.Collection.Singular())
}

// ValidationError reports input rejected at the boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// ConflictError is returned when an update carries a stale revision.
type ConflictError struct {
	Collection Collection
	ID         int
	Expected   int
	Actual     int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %d was modified: expected revision %d, current revision %d",
		e.Collection.Singular(), e.ID, e.Expected, e.Actual)
}

// ErrUnknownCollection is returned for collection names outside the closed set.
var ErrUnknownCollection = errors.New("unknown collection")

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}
