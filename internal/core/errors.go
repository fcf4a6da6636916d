package core

import (
	"errors"
	"fmt"
)

// GatewayError indicates a network or remote-backend failure. It is
// retryable; callers decide the retry policy.
type GatewayError struct {
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// DuplicateError is the backend's unique-constraint violation, raised
// for duplicate favorites or duplicate collection membership. Callers
// treat it as a benign no-op, not a failure.
type DuplicateError struct {
	Op string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: already exists", e.Op)
}

// StorageError indicates a local persistence failure. It is non-fatal:
// cache layers degrade to memory-only operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrNotAuthenticated is returned by mutation paths when no identity is
// present. Read paths return empty results instead of this error.
var ErrNotAuthenticated = errors.New("not authenticated: please log in first")

// ErrNotFound is returned when a requested row does not exist in the
// local store or the remote backend.
var ErrNotFound = errors.New("not found")

// IsDuplicate reports whether err is a benign unique-violation.
func IsDuplicate(err error) bool {
	var d *DuplicateError
	return errors.As(err, &d)
}

// IsGateway reports whether err is a network/remote failure.
func IsGateway(err error) bool {
	var g *GatewayError
	return errors.As(err, &g)
}

// IsStorage reports whether err is a local persistence failure.
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

// IsNotAuthenticated reports whether err is the missing-identity error.
func IsNotAuthenticated(err error) bool {
	return errors.Is(err, ErrNotAuthenticated)
}
