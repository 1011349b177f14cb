package mode

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-node/internal/kvstore"
)

// orderStore records the machine's in-memory mode at the moment of each write.
type orderStore struct {
	*kvstore.Memory
	machine     *Machine
	modeAtWrite []Mode
}

func (s *orderStore) Set(ctx context.Context, key, value string) error {
	if s.machine != nil {
		s.modeAtWrite = append(s.modeAtWrite, s.machine.Get())
	}
	return s.Memory.Set(ctx, key, value)
}

func TestNew_SeedsDefault(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	m, err := New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Get() != On {
		t.Errorf("Get() = %v, want ON", m.Get())
	}
	if raw, _ := store.Get(ctx, Key); raw != "1" {
		t.Errorf("persisted %q = %q, want %q", Key, raw, "1")
	}
}

func TestNew_SeedFailureIsFatal(t *testing.T) {
	store := kvstore.NewMemory()
	store.FailWrites(true)

	_, err := New(context.Background(), store, nil)
	if !errors.Is(err, ErrSeedFailed) {
		t.Errorf("New() error = %v, want ErrSeedFailed", err)
	}
}

func TestNew_InvalidStoredValueFallsBack(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	_ = store.Set(ctx, Key, "7")

	m, err := New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Get() != Default {
		t.Errorf("Get() = %v, want default", m.Get())
	}
}

// unreadableStore fails every Get with a storage error other than ErrNotFound.
type unreadableStore struct {
	*kvstore.Memory
}

var errDiskIO = errors.New("disk I/O error")

func (s unreadableStore) Get(context.Context, string) (string, error) {
	return "", errDiskIO
}

func TestNew_ReadFailureDegradesToDefault(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemory()
	_ = mem.Set(ctx, Key, "0")
	writesBefore := mem.Writes()

	m, err := New(ctx, unreadableStore{mem}, nil)
	if err != nil {
		t.Fatalf("New() error = %v, want a working machine", err)
	}
	if m.Get() != Default {
		t.Errorf("Get() = %v, want default", m.Get())
	}
	if !m.Degraded() {
		t.Error("Degraded() = false after a read failure")
	}

	// Degraded machines keep working in memory.
	if err := m.Set(ctx, Off); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if m.Get() != Off {
		t.Errorf("Get() after Set = %v, want OFF", m.Get())
	}
	if mem.Writes() != writesBefore {
		t.Errorf("writes = %d, want %d (no persistence while degraded)", mem.Writes(), writesBefore)
	}
}

func TestNew_InvalidStoredValueRewriteFailureDegrades(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	_ = store.Set(ctx, Key, "7")
	store.FailWrites(true)

	m, err := New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v, want a working machine", err)
	}
	if m.Get() != Default || !m.Degraded() {
		t.Errorf("Get() = %v, Degraded() = %v; want default and degraded", m.Get(), m.Degraded())
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	m, _ := New(ctx, store, nil)
	if err := m.Set(ctx, Off); err != nil {
		t.Fatalf("Set(OFF) error = %v", err)
	}
	if err := m.Set(ctx, On); err != nil {
		t.Fatalf("Set(ON) error = %v", err)
	}

	// Simulated restart over the same storage.
	restarted, err := New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() after restart error = %v", err)
	}
	if restarted.Get() != On {
		t.Errorf("Get() after restart = %v, want ON", restarted.Get())
	}

	_ = restarted.Set(ctx, Off)
	again, _ := New(ctx, store, nil)
	if again.Get() != Off {
		t.Errorf("Get() after second restart = %v, want OFF", again.Get())
	}
}

func TestSet_PersistsBeforeMemoryAndNotifiesInOrder(t *testing.T) {
	ctx := context.Background()
	store := &orderStore{Memory: kvstore.NewMemory()}
	m, _ := New(ctx, store, nil)
	store.machine = m

	var calls []string
	m.OnChange(func(old, current Mode) {
		if m.Get() != current {
			t.Errorf("callback saw in-memory %v, want %v", m.Get(), current)
		}
		calls = append(calls, "first:"+old.String()+"->"+current.String())
	})
	m.OnChange(func(_, current Mode) {
		calls = append(calls, "second:"+current.String())
	})

	if err := m.Set(ctx, Off); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if len(store.modeAtWrite) != 1 || store.modeAtWrite[0] != On {
		t.Errorf("mode at persist = %v, want [ON] (persist before memory update)", store.modeAtWrite)
	}
	want := []string{"first:ON->OFF", "second:OFF"}
	if len(calls) != len(want) {
		t.Fatalf("callbacks = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("callback[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestSet_SameModeIsNoop(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	m, _ := New(ctx, store, nil)
	writes := store.Writes()

	called := false
	m.OnChange(func(Mode, Mode) { called = true })

	if err := m.Set(ctx, On); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if called {
		t.Error("callback invoked for unchanged mode")
	}
	if store.Writes() != writes {
		t.Error("unchanged mode was persisted")
	}
}

func TestSet_InvalidMode(t *testing.T) {
	m, _ := New(context.Background(), kvstore.NewMemory(), nil)

	if err := m.Set(context.Background(), Mode(3)); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Set(3) error = %v, want ErrInvalidMode", err)
	}
	if m.Get() != On {
		t.Errorf("Get() = %v after invalid Set", m.Get())
	}
}

func TestSet_PersistFailureDegrades(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	m, _ := New(ctx, store, nil)

	notified := 0
	m.OnChange(func(Mode, Mode) { notified++ })

	store.FailWrites(true)
	if err := m.Set(ctx, Off); err != nil {
		t.Fatalf("Set() error = %v, want nil in degraded mode", err)
	}
	if !m.Degraded() {
		t.Error("Degraded() = false after persist failure")
	}
	if m.Get() != Off {
		t.Errorf("Get() = %v, want OFF applied in memory", m.Get())
	}
	if notified != 1 {
		t.Errorf("callbacks = %d, want 1", notified)
	}

	// Storage recovers, but the machine stays in memory for this boot.
	store.FailWrites(false)
	writes := store.Writes()
	_ = m.Set(ctx, On)
	if store.Writes() != writes {
		t.Error("degraded machine wrote to storage")
	}
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	m, _ := New(ctx, kvstore.NewMemory(), nil)

	if got := m.Toggle(ctx); got != Off || m.IsOn() {
		t.Errorf("Toggle() = %v, IsOn() = %v, want OFF/false", got, m.IsOn())
	}
	if got := m.Toggle(ctx); got != On || !m.IsOn() {
		t.Errorf("Toggle() = %v, IsOn() = %v, want ON/true", got, m.IsOn())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"ON", On, false},
		{"off", Off, false},
		{"1", On, false},
		{" 0 ", Off, false},
		{"standby", Off, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("Parse(%q) = %v, %v", tt.in, got, err)
			}
		})
	}

	if On.String() != "ON" || Off.String() != "OFF" {
		t.Error("String() mismatch")
	}
}
