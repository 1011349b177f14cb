// Package mode implements the node's persisted ON/OFF operating mode.
//
// Every mutation goes through Machine.Set, which persists the new value,
// then updates memory, then calls every registered callback in the same
// goroutine, in registration order. Callbacks must not block; hand slow
// work to the input worker.
//
// OFF suppresses sensor sampling and periodic data publishing. It does not
// stop the connectivity or session managers.
package mode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-node/internal/kvstore"
)

// Key is the persistence key of the mode.
const Key = "device_mode"

// Mode is the device operating mode.
type Mode int

const (
	Off Mode = 0
	On  Mode = 1
)

// Default is the mode seeded on first boot.
const Default = On

// String returns "OFF" or "ON".
func (m Mode) String() string {
	switch m {
	case Off:
		return "OFF"
	case On:
		return "ON"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Valid reports whether m is Off or On.
func (m Mode) Valid() bool {
	return m == Off || m == On
}

// Parse accepts "on"/"off" in any case, or "1"/"0".
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1":
		return On, nil
	case "off", "0":
		return Off, nil
	default:
		return Off, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Callback is invoked after a mode change. It runs on the setter's
// goroutine and must not block.
type Callback func(old, current Mode)

// Logger defines the logging interface used by the Machine.
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

// Machine owns the device mode.
//
// Get and IsOn are lock-free and safe from any goroutine. Set and Toggle
// are serialised.
type Machine struct {
	store  kvstore.Store
	logger Logger

	setMu     sync.Mutex
	current   atomic.Int32
	degraded  atomic.Bool
	callbacks []Callback
	cbMu      sync.RWMutex
}

// New loads the persisted mode, seeding Default when none is stored.
//
// Only a failure to seed on first boot is fatal (ErrSeedFailed). A read
// failure, or a failure to rewrite an undecodable stored value, is logged
// and the machine starts degraded on Default.
func New(ctx context.Context, store kvstore.Store, logger Logger) (*Machine, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	m := &Machine{store: store, logger: logger}

	raw, err := store.Get(ctx, Key)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		if err := store.Set(ctx, Key, encode(Default)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSeedFailed, err)
		}
		m.current.Store(int32(Default))
		logger.Info("device mode seeded", "mode", Default.String())
		return m, nil
	case err != nil:
		logger.Error("cannot read device mode, using default in memory", "error", err, "default", Default.String())
		m.degraded.Store(true)
		m.current.Store(int32(Default))
		return m, nil
	}

	loaded, err := Parse(raw)
	if err != nil {
		logger.Warn("stored device mode invalid, using default", "value", raw, "default", Default.String())
		loaded = Default
		if err := store.Set(ctx, Key, encode(Default)); err != nil {
			logger.Error("cannot rewrite device mode, continuing in memory", "error", err)
			m.degraded.Store(true)
		}
	}
	m.current.Store(int32(loaded))
	logger.Info("device mode loaded", "mode", loaded.String())
	return m, nil
}

// Get returns the current mode.
func (m *Machine) Get() Mode {
	return Mode(m.current.Load())
}

// IsOn reports whether the current mode is On.
func (m *Machine) IsOn() bool {
	return m.Get() == On
}

// Degraded reports whether a persistence failure has switched the machine
// to in-memory operation for the rest of this boot.
func (m *Machine) Degraded() bool {
	return m.degraded.Load()
}

// OnChange registers a callback. Callbacks run in registration order.
func (m *Machine) OnChange(cb Callback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Set changes the mode.
//
// Order of effects: persist, update memory, notify. Setting the current
// mode is a no-op. If persisting fails the machine logs, marks itself
// degraded and still applies and notifies the change; later calls skip
// persistence until restart.
//
// Returns ErrInvalidMode for values other than Off and On.
func (m *Machine) Set(ctx context.Context, next Mode) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(next))
	}

	m.setMu.Lock()
	defer m.setMu.Unlock()
	m.apply(ctx, next)
	return nil
}

// Toggle flips the mode and returns the new value.
func (m *Machine) Toggle(ctx context.Context) Mode {
	m.setMu.Lock()
	defer m.setMu.Unlock()

	next := On
	if m.Get() == On {
		next = Off
	}
	m.apply(ctx, next)
	return next
}

// apply runs the persist, memory, notify sequence. Caller holds setMu, so
// callbacks must not call Set or Toggle.
func (m *Machine) apply(ctx context.Context, next Mode) {
	old := m.Get()
	if old == next {
		m.logger.Debug("device mode unchanged", "mode", next.String())
		return
	}

	if !m.degraded.Load() {
		if err := m.store.Set(ctx, Key, encode(next)); err != nil {
			m.degraded.Store(true)
			m.logger.Error("persisting device mode failed, continuing in memory",
				"mode", next.String(),
				"error", err,
			)
		}
	}

	m.current.Store(int32(next))
	m.logger.Info("device mode changed", "from", old.String(), "to", next.String())

	m.cbMu.RLock()
	callbacks := make([]Callback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(old, next)
	}
}

func encode(m Mode) string {
	return strconv.Itoa(int(m))
}
