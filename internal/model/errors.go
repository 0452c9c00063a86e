package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks an insert-only write whose id already exists.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrConsistency marks a topic index that disagrees with the record store.
	ErrConsistency = errors.New("index inconsistent with store")
)

// Invalid returns an ErrValidation with detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing thing.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
