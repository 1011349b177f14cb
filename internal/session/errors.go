package session

import "errors"

var (
	// ErrMalformedCommand is returned for payloads that are not a command object.
	ErrMalformedCommand = errors.New("session: malformed command")

	// ErrUnknownCommand is returned for command names with no handler.
	ErrUnknownCommand = errors.New("session: unknown command")

	// ErrInvalidParams is returned when command parameters are missing or wrong.
	ErrInvalidParams = errors.New("session: invalid params")

	// ErrBusy is returned when deferred work cannot be queued.
	ErrBusy = errors.New("session: worker queue full")
)
