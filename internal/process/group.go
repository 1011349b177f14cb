package process

import (
	"context"
	"errors"
	"fmt"
)

// Group starts a set of processes in order and stops them in reverse.
// The access point needs hostapd up before the DHCP server binds.
type Group struct {
	members []*Manager
}

// NewGroup returns a group over the given managers.
func NewGroup(members ...*Manager) *Group {
	return &Group{members: members}
}

// Start launches every member in order. If one fails, members already
// started are stopped and the error is returned.
func (g *Group) Start(ctx context.Context) error {
	for i, m := range g.members {
		if err := m.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			for j := i - 1; j >= 0; j-- {
				_ = g.members[j].Stop() //nolint:errcheck // Unwinding after failure
			}
			return fmt.Errorf("starting %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Stop stops every member in reverse order and joins their errors.
func (g *Group) Stop() error {
	var errs []error
	for i := len(g.members) - 1; i >= 0; i-- {
		if err := g.members[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Running reports whether every member is running.
func (g *Group) Running() bool {
	if len(g.members) == 0 {
		return false
	}
	for _, m := range g.members {
		if !m.IsRunning() {
			return false
		}
	}
	return true
}

// Stats returns the stats of every member in start order.
func (g *Group) Stats() []Stats {
	out := make([]Stats, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.Stats())
	}
	return out
}
