package main

import (
	"context"
	"sync/atomic"
)

// sessionRunner is the part of the broker session the link follower drives.
type sessionRunner interface {
	Start(ctx context.Context)
	Stop()
}

// linkFollower starts the broker session while the station link is up and
// stops it when the link drops. Only the latest link state matters, so
// rapid flaps collapse into one transition.
type linkFollower struct {
	session sessionRunner
	up      atomic.Bool
	changed chan struct{}
}

func newLinkFollower(s sessionRunner) *linkFollower {
	return &linkFollower{session: s, changed: make(chan struct{}, 1)}
}

// set records the link state. It never blocks.
func (f *linkFollower) set(up bool) {
	f.up.Store(up)
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// run applies link changes until ctx is cancelled.
func (f *linkFollower) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.changed:
			if f.up.Load() {
				f.session.Start(ctx)
			} else {
				f.session.Stop()
			}
		}
	}
}
