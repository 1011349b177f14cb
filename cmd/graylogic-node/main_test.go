package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/connectivity"
	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/input"
	"github.com/nerrad567/gray-logic-node/internal/kvstore"
	"github.com/nerrad567/gray-logic-node/internal/mode"
)

// writeConfig writes a minimal valid configuration with its database in
// a temp directory and returns the config path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
device:
  id: test-node
database:
  path: "` + filepath.Join(dir, "node.db") + `"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
logging:
  level: error
  format: text
  output: stderr
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// openTestStore opens the database named by the config at path.
func openTestStore(t *testing.T, path string) kvstore.Store {
	t.Helper()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return kvstore.NewSQLite(db)
}

// ============================================================================
// run
// ============================================================================

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

// TestRun_MissingDatabasePath verifies run fails validation before
// touching the filesystem when the database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
device:
  id: test-node
database:
  path: ""
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: path})
	if err == nil {
		t.Fatal("run() should fail with an empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("run() error = %v, want database.path validation error", err)
	}
}

// ============================================================================
// Commands
// ============================================================================

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	if err := app.Run(context.Background(), []string{"graylogic-node", "version"}); err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out.String(), "graylogic-node "+version) {
		t.Errorf("version output = %q", out.String())
	}
}

func TestForgetNetworkCommand(t *testing.T) {
	path := writeConfig(t)
	ctx := context.Background()

	store := openTestStore(t, path)
	for key, value := range map[string]string{
		connectivity.KeySSID:        "home",
		connectivity.KeyPassword:    "secret123",
		connectivity.KeyProvisioned: "true",
		mode.Key:                    "1",
	} {
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	if err := newApp().Run(ctx, []string{"graylogic-node", "--config", path, "forget-network"}); err != nil {
		t.Fatalf("forget-network error = %v", err)
	}

	for _, key := range []string{connectivity.KeySSID, connectivity.KeyPassword, connectivity.KeyProvisioned} {
		if _, err := store.Get(ctx, key); !errors.Is(err, kvstore.ErrNotFound) {
			t.Errorf("Get(%s) error = %v, want ErrNotFound", key, err)
		}
	}
	if v, err := store.Get(ctx, mode.Key); err != nil || v != "1" {
		t.Errorf("mode = %q, %v; forget-network must keep other settings", v, err)
	}
}

func TestFactoryResetCommand(t *testing.T) {
	path := writeConfig(t)
	ctx := context.Background()

	store := openTestStore(t, path)
	for _, key := range []string{connectivity.KeySSID, mode.Key, device.IntervalKey} {
		if err := store.Set(ctx, key, "x"); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	if err := newApp().Run(ctx, []string{"graylogic-node", "--config", path, "factory-reset"}); err != nil {
		t.Fatalf("factory-reset error = %v", err)
	}

	for _, key := range []string{connectivity.KeySSID, mode.Key, device.IntervalKey} {
		if _, err := store.Get(ctx, key); !errors.Is(err, kvstore.ErrNotFound) {
			t.Errorf("Get(%s) error = %v, want ErrNotFound", key, err)
		}
	}
}

func TestMaintenanceCommand_InvalidConfig(t *testing.T) {
	for _, cmd := range []string{"forget-network", "factory-reset"} {
		t.Run(cmd, func(t *testing.T) {
			err := newApp().Run(context.Background(), []string{"graylogic-node", "--config", "/nonexistent.yaml", cmd})
			if err == nil {
				t.Fatal("expected error for missing config")
			}
		})
	}
}

// ============================================================================
// Wiring helpers
// ============================================================================

type fakeRebooter struct {
	mu      sync.Mutex
	reasons []string
}

func (r *fakeRebooter) Reboot(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *fakeRebooter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

func TestButtonBindings(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	modes, err := mode.New(ctx, store, nil)
	if err != nil {
		t.Fatalf("mode.New() error = %v", err)
	}
	devices := device.NewController(ctx, store, device.Switches{}, device.IntervalBounds{Default: 5, Min: 1, Max: 3600}, nil)
	rebooter := &fakeRebooter{}
	network := connectivity.New(nil, nil, store, rebooter, connectivity.Policy{})

	bindings := buttonBindings(modes, devices, network)
	if len(bindings) != 5 {
		t.Fatalf("bindings = %d, want 5", len(bindings))
	}

	if err := bindings[input.Mode](ctx); err != nil {
		t.Fatalf("mode action error = %v", err)
	}
	if got := modes.Get(); got != mode.Off {
		t.Errorf("mode after toggle = %v, want OFF", got)
	}

	tests := []struct {
		button input.Button
		output device.Output
	}{
		{input.OutputA, device.Fan},
		{input.OutputB, device.Light},
		{input.OutputC, device.AC},
	}
	for _, tt := range tests {
		t.Run(tt.button.String(), func(t *testing.T) {
			if err := bindings[tt.button](ctx); err != nil {
				t.Fatalf("action error = %v", err)
			}
			if !devices.Output(tt.output) {
				t.Errorf("%s should be on after one press", tt.output)
			}
		})
	}

	if err := store.Set(ctx, connectivity.KeySSID, "home"); err != nil {
		t.Fatal(err)
	}
	if err := bindings[input.LinkReset](ctx); err != nil {
		t.Fatalf("link reset error = %v", err)
	}
	if _, err := store.Get(ctx, connectivity.KeySSID); !errors.Is(err, kvstore.ErrNotFound) {
		t.Errorf("ssid still stored after link reset: %v", err)
	}
	if rebooter.count() != 1 {
		t.Errorf("reboots = %d, want 1", rebooter.count())
	}
}

func TestBuildSensors(t *testing.T) {
	s := buildSensors(config.SensorsConfig{}, nil)
	if s.Temperature != nil || s.Humidity != nil || s.Light != nil {
		t.Error("unconfigured sensors should be nil")
	}

	s = buildSensors(config.SensorsConfig{
		Temperature: config.SensorSourceConfig{Path: "/sys/temp", Scale: 0.001},
	}, nil)
	if s.Temperature == nil {
		t.Error("configured temperature sensor is nil")
	}
	if s.Humidity != nil {
		t.Error("humidity should stay nil")
	}
}

func TestVirtualPins(t *testing.T) {
	p := virtualPins(nil)

	if len(p.buttons) != 5 {
		t.Errorf("buttons = %d, want 5", len(p.buttons))
	}
	for b, pin := range p.buttons {
		v, err := pin.Value()
		if err != nil || v != 1 {
			t.Errorf("%s reads %d, %v; want released", b, v, err)
		}
	}
	if p.outputs.Fan == nil || p.outputs.Light == nil || p.outputs.AC == nil {
		t.Error("virtual outputs missing")
	}
	if p.indicators.Mode == nil || p.indicators.Link == nil || p.indicators.Session == nil {
		t.Error("virtual indicators missing")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ============================================================================
// Link follower
// ============================================================================

type fakeSession struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (s *fakeSession) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSession) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLinkFollower(t *testing.T) {
	sess := &fakeSession{}
	f := newLinkFollower(sess)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.run(ctx)
		close(done)
	}()

	f.set(true)
	waitFor(t, func() bool { starts, _ := sess.counts(); return starts == 1 })

	f.set(false)
	waitFor(t, func() bool { _, stops := sess.counts(); return stops == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("follower did not stop")
	}
}

func TestLinkFollower_SetNeverBlocks(t *testing.T) {
	f := newLinkFollower(&fakeSession{})

	// No runner: repeated changes coalesce into the pending signal.
	for i := 0; i < 10; i++ {
		f.set(i%2 == 0)
	}
	if f.up.Load() {
		t.Error("latest state should be down")
	}
}
