// Package status mirrors the node's health flags onto indicator LEDs.
//
// Flags are advisory single-word values written by their owning component
// and read opportunistically. The Aggregator polls them at a short fixed
// interval and writes an indicator only when its flag has changed.
package status

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the aggregator period.
const DefaultPollInterval = 50 * time.Millisecond

// Flags holds the three health bits. Each has one writer.
type Flags struct {
	modeOn    atomic.Bool
	linkUp    atomic.Bool
	sessionUp atomic.Bool
}

// SetModeOn is written by the mode state machine callback.
func (f *Flags) SetModeOn(v bool) { f.modeOn.Store(v) }

// SetLinkUp is written by the connectivity state listener.
func (f *Flags) SetLinkUp(v bool) { f.linkUp.Store(v) }

// SetSessionUp is written by the session manager.
func (f *Flags) SetSessionUp(v bool) { f.sessionUp.Store(v) }

// ModeOn reports whether the device mode is ON.
func (f *Flags) ModeOn() bool { return f.modeOn.Load() }

// LinkUp reports whether the wireless link is CONNECTED.
func (f *Flags) LinkUp() bool { return f.linkUp.Load() }

// SessionUp reports whether the broker session is CONNECTED.
func (f *Flags) SessionUp() bool { return f.sessionUp.Load() }

// Snapshot is a point-in-time copy of the flags.
type Snapshot struct {
	ModeOn    bool `json:"mode_on"`
	LinkUp    bool `json:"link_up"`
	SessionUp bool `json:"session_up"`
}

// Snapshot reads all three flags. The reads are not atomic as a group.
func (f *Flags) Snapshot() Snapshot {
	return Snapshot{
		ModeOn:    f.ModeOn(),
		LinkUp:    f.LinkUp(),
		SessionUp: f.SessionUp(),
	}
}

// Indicator is an LED or similar binary output.
type Indicator interface {
	SetValue(on bool) error
}

// Indicators maps each flag to an output. Nil entries are skipped.
type Indicators struct {
	Mode    Indicator
	Link    Indicator
	Session Indicator
}

// Logger defines the logging interface used by the Aggregator.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Aggregator polls Flags and drives Indicators on change.
type Aggregator struct {
	flags      *Flags
	indicators Indicators
	interval   time.Duration
	logger     Logger

	last   Snapshot
	primed bool
}

// NewAggregator creates an aggregator. A zero interval uses DefaultPollInterval.
func NewAggregator(flags *Flags, indicators Indicators, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Aggregator{
		flags:      flags,
		indicators: indicators,
		interval:   interval,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for indicator write failures.
func (a *Aggregator) SetLogger(l Logger) {
	a.logger = l
}

// Run polls until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.Poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Poll()
		}
	}
}

// Poll compares the flags with the last written values and writes the
// indicators that differ. The first poll writes all of them.
func (a *Aggregator) Poll() {
	cur := a.flags.Snapshot()

	a.write("mode", a.indicators.Mode, cur.ModeOn, a.last.ModeOn)
	a.write("link", a.indicators.Link, cur.LinkUp, a.last.LinkUp)
	a.write("session", a.indicators.Session, cur.SessionUp, a.last.SessionUp)

	a.last = cur
	a.primed = true
}

func (a *Aggregator) write(name string, ind Indicator, cur, last bool) {
	if ind == nil || (a.primed && cur == last) {
		return
	}
	if err := ind.SetValue(cur); err != nil {
		a.logger.Warn("indicator write failed", "indicator", name, "error", err)
	}
}
