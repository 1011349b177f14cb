package kvstore

import "errors"

var (
	// ErrNotFound is returned when a key has never been written or was deleted.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrInvalidValue is returned when a stored value cannot be decoded
	// into the requested type.
	ErrInvalidValue = errors.New("kvstore: invalid stored value")
)
