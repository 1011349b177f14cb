// Package device owns the node's switched outputs and publish interval.
//
// Outputs are the three loads named in the state payload: fan, light and
// ac. The publish interval is the data cadence in seconds and is persisted
// under IntervalKey. Output states are not persisted; loads come up off
// after a reboot.
package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/kvstore"
)

// IntervalKey is the persistence key of the publish interval.
const IntervalKey = "publish_interval"

// Output identifies one switched load.
type Output int

const (
	Fan Output = iota
	Light
	AC

	numOutputs
)

var outputNames = [numOutputs]string{"fan", "light", "ac"}

// String returns the wire name of the output.
func (o Output) String() string {
	if o < 0 || o >= numOutputs {
		return fmt.Sprintf("Output(%d)", int(o))
	}
	return outputNames[o]
}

// ParseOutput maps a wire name to an Output.
func ParseOutput(name string) (Output, error) {
	for i, n := range outputNames {
		if strings.EqualFold(name, n) {
			return Output(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOutput, name)
}

// Switch drives one physical output.
type Switch interface {
	SetValue(on bool) error
}

// Switches maps outputs to their drivers. A nil entry is a virtual output
// tracked in memory only.
type Switches struct {
	Fan   Switch
	Light Switch
	AC    Switch
}

// IntervalBounds constrains the publish interval, in seconds.
type IntervalBounds struct {
	Default int
	Min     int
	Max     int
}

// State is a snapshot of every output and the publish interval.
type State struct {
	Fan      bool `json:"fan"`
	Light    bool `json:"light"`
	AC       bool `json:"ac"`
	Interval int  `json:"interval"`
}

// Logger defines the logging interface used by the Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller holds output and interval state. All methods are safe for
// concurrent use.
type Controller struct {
	store    kvstore.Store
	bounds   IntervalBounds
	switches [numOutputs]Switch
	logger   Logger

	mu       sync.RWMutex
	outputs  [numOutputs]bool
	interval int

	listenersMu sync.RWMutex
	listeners   []func(State)
}

// NewController loads the persisted interval and drives every output off.
//
// A stored interval outside bounds is replaced by bounds.Default. A driver
// failure while forcing outputs off is logged, not returned.
func NewController(ctx context.Context, store kvstore.Store, switches Switches, bounds IntervalBounds, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Controller{
		store:    store,
		bounds:   bounds,
		switches: [numOutputs]Switch{switches.Fan, switches.Light, switches.AC},
		logger:   logger,
	}

	interval, err := kvstore.GetInt(ctx, store, IntervalKey, bounds.Default)
	if err != nil {
		logger.Warn("stored interval unreadable, using default", "error", err)
		interval = bounds.Default
	}
	if interval < bounds.Min || interval > bounds.Max {
		logger.Warn("stored interval out of range, using default", "interval", interval)
		interval = bounds.Default
	}
	c.interval = interval

	for o := range numOutputs {
		c.drive(o, false)
	}
	return c
}

// OnChange registers a listener called after every state change.
// Listeners run on the caller's goroutine and must not block.
func (c *Controller) OnChange(fn func(State)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns a snapshot of outputs and interval.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{
		Fan:      c.outputs[Fan],
		Light:    c.outputs[Light],
		AC:       c.outputs[AC],
		Interval: c.interval,
	}
}

// Output returns the state of one output.
func (c *Controller) Output(o Output) bool {
	if o < 0 || o >= numOutputs {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outputs[o]
}

// SetOutput switches one output.
func (c *Controller) SetOutput(o Output, on bool) error {
	if o < 0 || o >= numOutputs {
		return fmt.Errorf("%w: %d", ErrUnknownOutput, int(o))
	}
	c.mu.Lock()
	changed := c.setLocked(o, on)
	st := c.stateLocked()
	c.mu.Unlock()

	if changed {
		c.notify(st)
	}
	return nil
}

// ToggleOutput flips one output and returns its new state.
func (c *Controller) ToggleOutput(o Output) (bool, error) {
	if o < 0 || o >= numOutputs {
		return false, fmt.Errorf("%w: %d", ErrUnknownOutput, int(o))
	}
	c.mu.Lock()
	on := !c.outputs[o]
	c.setLocked(o, on)
	st := c.stateLocked()
	c.mu.Unlock()

	c.notify(st)
	return on, nil
}

// SetOutputs applies several outputs at once. A negative value leaves that
// output unchanged; zero is off and any positive value is on. Listeners
// are notified once.
func (c *Controller) SetOutputs(fan, light, ac int) {
	c.mu.Lock()
	changed := false
	for o, v := range [numOutputs]int{fan, light, ac} {
		if v < 0 {
			continue
		}
		if c.setLocked(Output(o), v > 0) {
			changed = true
		}
	}
	st := c.stateLocked()
	c.mu.Unlock()

	if changed {
		c.notify(st)
	}
}

// setLocked records and drives one output. Caller holds mu.
func (c *Controller) setLocked(o Output, on bool) bool {
	if c.outputs[o] == on {
		return false
	}
	c.outputs[o] = on
	c.drive(o, on)
	c.logger.Info("output switched", "output", o.String(), "on", on)
	return true
}

func (c *Controller) drive(o Output, on bool) {
	sw := c.switches[o]
	if sw == nil {
		return
	}
	if err := sw.SetValue(on); err != nil {
		c.logger.Error("driving output failed", "output", o.String(), "on", on, "error", err)
	}
}

// Interval returns the publish interval.
func (c *Controller) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds()) * time.Second
}

// IntervalSeconds returns the publish interval in whole seconds.
func (c *Controller) IntervalSeconds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// SetInterval validates, persists and applies a new publish interval.
//
// A persistence failure is logged and the interval still applies for
// this boot.
func (c *Controller) SetInterval(ctx context.Context, seconds int) error {
	if seconds < c.bounds.Min || seconds > c.bounds.Max {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrIntervalOutOfRange, seconds, c.bounds.Min, c.bounds.Max)
	}

	if err := kvstore.SetInt(ctx, c.store, IntervalKey, seconds); err != nil {
		c.logger.Error("persisting interval failed", "interval", seconds, "error", err)
	}

	c.mu.Lock()
	changed := c.interval != seconds
	c.interval = seconds
	st := c.stateLocked()
	c.mu.Unlock()

	c.logger.Info("publish interval set", "interval", seconds)
	if changed {
		c.notify(st)
	}
	return nil
}

func (c *Controller) notify(st State) {
	c.listenersMu.RLock()
	listeners := make([]func(State), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(st)
	}
}
