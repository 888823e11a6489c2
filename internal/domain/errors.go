package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")

	// ErrNoFilters means a report has no stored criteria yet. It is an
	// empty state, not an access failure.
	ErrNoFilters = errors.New("no report filters")

	// ErrNoResult means a report has criteria but nothing to show for them.
	ErrNoResult = errors.New("no report result")
)

// Invalid wraps ErrValidation with a user facing message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
