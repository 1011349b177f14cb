package device

import "errors"

var (
	// ErrUnknownOutput is returned for an output name or index outside fan, light, ac.
	ErrUnknownOutput = errors.New("unknown output")

	// ErrIntervalOutOfRange is returned when a publish interval is outside
	// the configured bounds.
	ErrIntervalOutOfRange = errors.New("interval out of range")
)
