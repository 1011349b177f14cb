package gpio

import (
	"sync/atomic"
)

// Logger receives virtual output changes.
type Logger interface {
	Info(msg string, args ...any)
}

// VirtualInput is a button for hosts without GPIO. It reads released
// (1) until Press is called.
type VirtualInput struct {
	level atomic.Int32
}

// NewVirtualInput returns a released virtual button.
func NewVirtualInput() *VirtualInput {
	v := &VirtualInput{}
	v.level.Store(1)
	return v
}

// Press pulls the line low.
func (v *VirtualInput) Press() { v.level.Store(0) }

// Release lets the line float high.
func (v *VirtualInput) Release() { v.level.Store(1) }

// Value returns the current level.
func (v *VirtualInput) Value() (int, error) {
	return int(v.level.Load()), nil
}

// VirtualOutput records and logs the last value written.
type VirtualOutput struct {
	name   string
	logger Logger
	on     atomic.Bool
	writes atomic.Int64
}

// NewVirtualOutput creates a virtual output. logger may be nil.
func NewVirtualOutput(name string, logger Logger) *VirtualOutput {
	return &VirtualOutput{name: name, logger: logger}
}

// SetValue records the value.
func (v *VirtualOutput) SetValue(on bool) error {
	v.on.Store(on)
	v.writes.Add(1)
	if v.logger != nil {
		v.logger.Info("virtual output", "name", v.name, "on", on)
	}
	return nil
}

// On reports the last value written.
func (v *VirtualOutput) On() bool { return v.on.Load() }

// Writes counts SetValue calls.
func (v *VirtualOutput) Writes() int { return int(v.writes.Load()) }
