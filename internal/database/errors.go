package database

import "errors"

var (
	// ErrParentNotFound is returned by CreateComment when the referenced
	// parent comment does not exist.
	ErrParentNotFound = errors.New("parent comment not found")
	// ErrParentThreadMismatch is returned by CreateComment when the
	// referenced parent comment belongs to a different thread.
	ErrParentThreadMismatch = errors.New("parent comment belongs to a different thread")
)
