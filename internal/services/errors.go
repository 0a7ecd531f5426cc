package services

import "errors"

// Error taxonomy for core operations. Handlers map these to HTTP codes;
// anything else is treated as an internal failure.
var (
	// ErrValidation marks caller input errors. No mutation occurred.
	ErrValidation = errors.New("validation failed")
	// ErrInconsistent marks corrupted stored state, e.g. a retreat that
	// cannot locate the previous stage despite not being at position 1.
	// Must never be swallowed.
	ErrInconsistent = errors.New("data consistency failure")
)
