package sensor

import (
	"context"
	"math"
	"time"
)

// Logger defines the logging interface used by the Sampler.
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

// Recorder receives each merged sample, e.g. for time-series history.
type Recorder interface {
	RecordSample(ctx context.Context, s Sample) error
}

// Gate reports whether sampling is currently enabled (device mode ON).
type Gate interface {
	IsOn() bool
}

// Sensors groups the drivers read on each pass. A nil driver is skipped
// and does not affect the Valid flag.
type Sensors struct {
	Temperature FloatSensor
	Humidity    FloatSensor
	Light       LightSensor
	Clock       Clock
}

// tick is the sampler's scheduling resolution.
const tick = time.Second

// Sampler is the sole writer of a Store.
type Sampler struct {
	store    *Store
	sensors  Sensors
	interval func() time.Duration
	gate     Gate
	recorder Recorder
	logger   Logger
}

// NewSampler creates a sampler writing to store.
// interval is consulted on every tick so remote interval changes take
// effect without a restart.
func NewSampler(store *Store, sensors Sensors, interval func() time.Duration) *Sampler {
	return &Sampler{
		store:    store,
		sensors:  sensors,
		interval: interval,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the sampler.
func (s *Sampler) SetLogger(l Logger) {
	s.logger = l
}

// SetGate makes sampling conditional on g.IsOn().
func (s *Sampler) SetGate(g Gate) {
	s.gate = g
}

// SetRecorder attaches an optional history sink.
func (s *Sampler) SetRecorder(r Recorder) {
	s.recorder = r
}

// Run samples immediately and then whenever the interval has elapsed,
// until ctx is cancelled. Passes are skipped while the gate is off.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var last time.Time
	for {
		if s.enabled() && (last.IsZero() || time.Since(last) >= s.interval()) {
			s.SampleOnce(ctx)
			last = time.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sampler) enabled() bool {
	return s.gate == nil || s.gate.IsOn()
}

// SampleOnce reads every configured sensor independently and merges the
// results into the store. Failures are logged; the pass never aborts early.
func (s *Sampler) SampleOnce(ctx context.Context) Reading {
	r := Reading{TemperatureOK: true, HumidityOK: true, LightOK: true, TimestampOK: true}

	if d := s.sensors.Temperature; d != nil {
		v, err := d.ReadFloat(ctx)
		r.Temperature, r.TemperatureOK = round2(v), err == nil
		s.logReadError("temperature", err)
	}
	if d := s.sensors.Humidity; d != nil {
		v, err := d.ReadFloat(ctx)
		r.Humidity, r.HumidityOK = round2(v), err == nil
		s.logReadError("humidity", err)
	}
	if d := s.sensors.Light; d != nil {
		v, err := d.ReadLux(ctx)
		r.Light, r.LightOK = v, err == nil
		s.logReadError("light", err)
	}
	if d := s.sensors.Clock; d != nil {
		v, err := d.Unix(ctx)
		r.Timestamp, r.TimestampOK = v, err == nil
		s.logReadError("clock", err)
	}

	if err := s.store.Merge(r); err != nil {
		s.logger.Warn("sensor sample dropped", "error", err)
		return r
	}

	if s.recorder != nil {
		if sample, err := s.store.Get(); err == nil {
			if err := s.recorder.RecordSample(ctx, sample); err != nil {
				s.logger.Debug("recording sample failed", "error", err)
			}
		}
	}

	s.logger.Debug("sensors sampled",
		"temperature", r.Temperature,
		"humidity", r.Humidity,
		"light", r.Light,
		"valid", r.AllOK(),
	)
	return r
}

func (s *Sampler) logReadError(name string, err error) {
	if err != nil {
		s.logger.Warn("sensor read failed", "sensor", name, "error", err)
	}
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
