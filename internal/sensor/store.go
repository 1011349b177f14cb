package sensor

import (
	"time"
)

// DefaultLockTimeout bounds lock acquisition when no timeout is configured.
const DefaultLockTimeout = 100 * time.Millisecond

// Sample is the latest known reading of every sensor.
type Sample struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Light       uint32  `json:"light"`

	// Timestamp is seconds since the Unix epoch, from the node clock.
	Timestamp uint32 `json:"timestamp"`

	// Valid is false when any sensor failed on the most recent read.
	Valid bool `json:"valid"`
}

// Reading is the outcome of one sampling pass. Each field is applied to the
// cached sample only when its OK flag is set.
type Reading struct {
	Temperature   float64
	TemperatureOK bool

	Humidity   float64
	HumidityOK bool

	Light   uint32
	LightOK bool

	Timestamp   uint32
	TimestampOK bool
}

// AllOK reports whether every sensor in the reading succeeded.
func (r Reading) AllOK() bool {
	return r.TemperatureOK && r.HumidityOK && r.LightOK && r.TimestampOK
}

// Store is the shared, bounded-lock cache of the latest Sample.
//
// Single-writer discipline is a caller contract: only the sampling task
// calls Update or Merge. Any goroutine may call Get.
//
// The lock is a one-slot channel so acquisition can time out.
type Store struct {
	sem         chan struct{}
	timeout     time.Duration
	sample      Sample
	initialized bool
}

// NewStore creates an empty store. A non-positive timeout selects DefaultLockTimeout.
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		sem:     make(chan struct{}, 1),
		timeout: lockTimeout,
	}
}

func (s *Store) lock() error {
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	}
}

func (s *Store) unlock() {
	<-s.sem
}

// Update overwrites the cached sample.
//
// Returns ErrLockTimeout if the lock is not acquired in time; the prior
// sample is then left untouched.
func (s *Store) Update(sample Sample) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	s.sample = sample
	s.initialized = true
	return nil
}

// Merge applies a per-sensor reading to the cached sample.
//
// Fields whose read failed keep their previous value. Valid is set to
// whether every sensor in the reading succeeded.
func (s *Store) Merge(r Reading) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	if r.TemperatureOK {
		s.sample.Temperature = r.Temperature
	}
	if r.HumidityOK {
		s.sample.Humidity = r.Humidity
	}
	if r.LightOK {
		s.sample.Light = r.Light
	}
	if r.TimestampOK {
		s.sample.Timestamp = r.Timestamp
	}
	s.sample.Valid = r.AllOK()
	s.initialized = true
	return nil
}

// Get returns a copy of the cached sample.
//
// Returns ErrNotInitialized before the first Update or Merge, and
// ErrLockTimeout if the lock is not acquired in time.
func (s *Store) Get() (Sample, error) {
	if err := s.lock(); err != nil {
		return Sample{}, err
	}
	defer s.unlock()

	if !s.initialized {
		return Sample{}, ErrNotInitialized
	}
	return s.sample, nil
}
