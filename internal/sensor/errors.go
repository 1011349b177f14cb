package sensor

import "errors"

var (
	// ErrLockTimeout is returned when the store lock cannot be acquired
	// within the configured bound. The cached sample is left untouched.
	ErrLockTimeout = errors.New("sensor store lock timeout")

	// ErrNotInitialized is returned by Get before the first successful write.
	ErrNotInitialized = errors.New("sensor store not initialized")

	// ErrNoSource is returned by a driver with no configured backing source.
	ErrNoSource = errors.New("sensor source not configured")
)
