package system

import "errors"

var (
	// ErrNoRebootCommand is returned when no reboot command is configured.
	ErrNoRebootCommand = errors.New("system: reboot command not configured")

	// ErrRebootPending is returned when a reboot has already been scheduled.
	ErrRebootPending = errors.New("system: reboot already pending")
)
