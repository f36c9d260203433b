// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or concurrent modification conflict.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates invalid input. Wrap it with the field-level reason:
//
//	fmt.Errorf("%w: name is required", domain.ErrValidation)
var ErrValidation = errors.New("validation")

// Request pipeline errors. Each maps to exactly one HTTP status.
var (
	// ErrTenantNotFound means no space matched the host or parameter and no fallback applied.
	ErrTenantNotFound = errors.New("space not found")
	// ErrInvalidRequest means a required header or parameter is missing.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthenticated means no valid session token was presented where one is required.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the identity is valid but the authorization predicate denied it.
	ErrForbidden = errors.New("forbidden")
	// ErrDependencyUnavailable means the directory or another backing service failed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
