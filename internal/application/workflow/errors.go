package workflow

import "errors"

// Engine error kinds. Returned errors wrap one of these with a reason, so
// callers compare with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrResolution   = errors.New("approver resolution failed")
	ErrConflict     = errors.New("concurrent modification")
	ErrInvalidInput = errors.New("invalid input")
)
