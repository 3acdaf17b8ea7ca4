package service

import "errors"

// Sentinel errors returned by lifecycle operations. The HTTP layer maps
// these onto status codes; callers inside the process match with
// errors.Is.
var (
	// ErrNotFound reports an unknown key record id.
	ErrNotFound = errors.New("key_not_found")

	// ErrConflict reports a lost optimistic concurrency race or an
	// attempt to issue a second active key for an exchange.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState reports an operation against a record whose
	// current status does not permit the requested transition.
	ErrInvalidState = errors.New("invalid_state")

	// ErrValidation reports malformed operation input.
	ErrValidation = errors.New("invalid_request")

	// ErrDependency reports a failure in an external collaborator
	// (secret store or notification gateway). State already committed
	// before the failure stays committed.
	ErrDependency = errors.New("dependency_failure")
)
