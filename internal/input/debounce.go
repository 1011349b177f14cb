package input

import (
	"context"
	"time"
)

// Logger defines the logging interface used by this package.
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

// Pin reads a raw line level. Buttons are active-low with a pull-up:
// 0 means pressed.
type Pin interface {
	Value() (int, error)
}

// Debouncer defaults.
const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultStableReads  = 5
)

type buttonState struct {
	button  Button
	pin     Pin
	lows    int
	latched bool
	failing bool
}

// Debouncer polls buttons at a fixed rate and pushes one event per press.
type Debouncer struct {
	queue    *Queue
	interval time.Duration
	stable   int
	buttons  []*buttonState
	logger   Logger
}

// NewDebouncer creates a debouncer feeding queue. Zero interval or
// stable values use the defaults.
func NewDebouncer(queue *Queue, interval time.Duration, stable int) *Debouncer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if stable < 1 {
		stable = DefaultStableReads
	}
	return &Debouncer{
		queue:    queue,
		interval: interval,
		stable:   stable,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the debouncer.
func (d *Debouncer) SetLogger(l Logger) {
	d.logger = l
}

// Add registers a button. Call before Run.
func (d *Debouncer) Add(b Button, pin Pin) {
	d.buttons = append(d.buttons, &buttonState{button: b, pin: pin})
}

// Run polls until ctx is cancelled.
func (d *Debouncer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Poll()
		}
	}
}

// Poll reads every button once.
func (d *Debouncer) Poll() {
	for _, st := range d.buttons {
		v, err := st.pin.Value()
		if err != nil {
			if !st.failing {
				d.logger.Warn("button read failed", "button", st.button.String(), "error", err)
				st.failing = true
			}
			v = 1
		} else {
			st.failing = false
		}

		if v != 0 {
			st.lows = 0
			st.latched = false
			continue
		}

		st.lows++
		if st.lows >= d.stable && !st.latched {
			st.latched = true
			d.logger.Debug("button pressed", "button", st.button.String())
			d.queue.Push(Pressed(st.button))
		}
	}
}
