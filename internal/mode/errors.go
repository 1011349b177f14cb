package mode

import "errors"

var (
	// ErrInvalidMode is returned for values other than Off and On.
	ErrInvalidMode = errors.New("invalid device mode")

	// ErrSeedFailed is returned by New when the default mode cannot be
	// written on first boot.
	ErrSeedFailed = errors.New("seeding device mode failed")
)
