package sensor

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// FloatSensor reads one scalar measurement (temperature, humidity).
type FloatSensor interface {
	ReadFloat(ctx context.Context) (float64, error)
}

// LightSensor reads illuminance in lux.
type LightSensor interface {
	ReadLux(ctx context.Context) (uint32, error)
}

// Clock reports the node's wall time in seconds since the epoch.
type Clock interface {
	Unix(ctx context.Context) (uint32, error)
}

// IIOSensor reads a Linux Industrial I/O sysfs attribute.
//
// The raw attribute is multiplied by Scale, e.g. in_temp_input is in
// milli-degrees and uses a scale of 0.001.
type IIOSensor struct {
	Path  string
	Scale float64
}

// NewIIOSensor returns a driver for the sysfs attribute at path.
// A zero scale is treated as 1.
func NewIIOSensor(path string, scale float64) *IIOSensor {
	if scale == 0 {
		scale = 1
	}
	return &IIOSensor{Path: path, Scale: scale}
}

// ReadFloat reads and scales the attribute.
func (s *IIOSensor) ReadFloat(_ context.Context) (float64, error) {
	if s.Path == "" {
		return 0, ErrNoSource
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", s.Path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", s.Path, err)
	}
	return v * s.Scale, nil
}

// ReadLux reads the attribute as a non-negative whole lux value.
func (s *IIOSensor) ReadLux(ctx context.Context) (uint32, error) {
	v, err := s.ReadFloat(ctx)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, nil
	}
	if v > math.MaxUint32 {
		return math.MaxUint32, nil
	}
	return uint32(math.Round(v)), nil
}

// SystemClock is the host clock with an adjustable offset.
//
// Set shifts the reported time without touching the host clock, so a
// remote set_timestamp command does not need privileges.
type SystemClock struct {
	offset atomic.Int64 // nanoseconds
	now    func() time.Time
}

// NewSystemClock returns a clock tracking time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{now: time.Now}
}

// Unix returns the adjusted time in seconds since the epoch.
func (c *SystemClock) Unix(_ context.Context) (uint32, error) {
	t := c.Now()
	if t.Unix() < 0 || t.Unix() > math.MaxUint32 {
		return 0, fmt.Errorf("clock out of range: %s", t)
	}
	return uint32(t.Unix()), nil //nolint:gosec // Range checked above
}

// Now returns the adjusted wall time.
func (c *SystemClock) Now() time.Time {
	return c.now().Add(time.Duration(c.offset.Load()))
}

// Set adjusts the clock so that it currently reads ts.
func (c *SystemClock) Set(ts uint32) {
	target := time.Unix(int64(ts), 0)
	c.offset.Store(int64(target.Sub(c.now())))
}
