package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request failed input validation.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict indicates the resource is still referenced elsewhere.
	ErrConflict = errors.New("resource in use")
	// ErrBusy indicates the same mutation is already in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrForbidden indicates the actor lacks the required scopes.
	ErrForbidden = errors.New("forbidden")
)
