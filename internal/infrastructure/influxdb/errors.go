package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when history is switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps an unreachable or unhealthy server at Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned after Close, or by a zero Client.
	ErrNotConnected = errors.New("influxdb: not connected")
)
