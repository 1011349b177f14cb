package kvstore

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is returned by Memory when write failure is enabled.
var ErrInjected = errors.New("kvstore: injected write failure")

// Memory is an in-process Store for tests, with optional write-failure injection.
type Memory struct {
	mu         sync.RWMutex
	data       map[string]string
	failWrites bool
	writes     int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// FailWrites makes subsequent Set, Delete and Erase calls fail with ErrInjected.
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// Writes reports the number of successful mutating calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrInjected
	}
	m.data[key] = value
	m.writes++
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrInjected
	}
	delete(m.data, key)
	m.writes++
	return nil
}

func (m *Memory) Erase(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrInjected
	}
	m.data = make(map[string]string)
	m.writes++
	return nil
}
