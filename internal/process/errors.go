package process

import "errors"

// ErrAlreadyRunning is returned by Start on a process that is running.
var ErrAlreadyRunning = errors.New("process already running")
