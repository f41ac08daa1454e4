package service

import "fmt"

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PermissionError means the caller's role does not allow the operation,
// or the caller has no membership in the room at all.
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Op)
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// InvariantError means the write would violate a structural rule, such as
// replying to a comment that lives in a different thread.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return e.Reason
}

// TransientStoreError wraps a store failure that is worth retrying.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}
