package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/connectivity"
	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/kvstore"
	"github.com/nerrad567/gray-logic-node/internal/mode"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

// ============================================================================
// Fakes
// ============================================================================

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	pubs         []published
	handlers     map[string]mqtt.MessageHandler
	onConnect    func()
	onDisconnect func(error)
	closed       int
	subErr       error
	subs         int
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubs = append(c.pubs, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return c.subErr
	}
	c.handlers[topic] = handler
	c.subs++
	return nil
}

func (c *fakeClient) subscribes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs
}

func (c *fakeClient) SetOnConnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = cb
}

func (c *fakeClient) SetOnDisconnect(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Broker() string { return "broker.local:1883" }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.connected = false
	return nil
}

// deliver simulates an inbound message on topic.
func (c *fakeClient) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler subscribed on %s", topic)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func (c *fakeClient) drop() {
	c.mu.Lock()
	c.connected = false
	cb := c.onDisconnect
	c.mu.Unlock()
	cb(errors.New("link lost"))
}

func (c *fakeClient) restore() {
	c.mu.Lock()
	c.connected = true
	cb := c.onConnect
	c.mu.Unlock()
	cb()
}

func (c *fakeClient) on(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.pubs {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeNetwork struct {
	mu     sync.Mutex
	status connectivity.Status
}

func (n *fakeNetwork) Status() connectivity.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *fakeNetwork) set(ssid, ip string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status.SSID, n.status.IP = ssid, ip
}

type fakeTasks struct {
	mu     sync.Mutex
	reject bool
	names  []string
	runs   []func(context.Context) error
}

func (f *fakeTasks) Submit(name string, run func(context.Context) error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.names = append(f.names, name)
	f.runs = append(f.runs, run)
	return true
}

type fakeRebooter struct {
	mu      sync.Mutex
	reasons []string
}

func (r *fakeRebooter) Reboot(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

// ============================================================================
// Harness
// ============================================================================

var testTopics = mqtt.Topics{Base: "graylogic", DeviceID: "node-1"}

type harness struct {
	m        *Manager
	mode     *mode.Machine
	device   *device.Controller
	sensors  *sensor.Store
	clock    *sensor.SystemClock
	network  *fakeNetwork
	tasks    *fakeTasks
	rebooter *fakeRebooter
	resets   atomic.Int32
	client   *fakeClient
	dials    atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := kvstore.NewMemory()

	modes, err := mode.New(ctx, store, nil)
	if err != nil {
		t.Fatalf("mode.New() error = %v", err)
	}
	h := &harness{
		mode:     modes,
		device:   device.NewController(ctx, store, device.Switches{}, device.IntervalBounds{Default: 5, Min: 1, Max: 3600}, nil),
		sensors:  sensor.NewStore(0),
		clock:    sensor.NewSystemClock(),
		network:  &fakeNetwork{status: connectivity.Status{State: connectivity.Connected, SSID: "greenhouse", IP: "10.0.0.7"}},
		tasks:    &fakeTasks{},
		rebooter: &fakeRebooter{},
		client:   newFakeClient(),
	}
	if err := h.sensors.Update(sensor.Sample{Temperature: 21.5, Humidity: 40.25, Light: 300, Timestamp: 1700000000, Valid: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	dial := func(context.Context) (Client, error) {
		h.dials.Add(1)
		return h.client, nil
	}
	h.m = New(Config{
		Topics:    testTopics,
		Firmware:  "1.2.0",
		Tick:      10 * time.Millisecond,
		DialRetry: 10 * time.Millisecond,
	}, dial, Deps{
		Sensors:  h.sensors,
		Mode:     h.mode,
		Device:   h.device,
		Clock:    h.clock,
		Network:  h.network,
		Tasks:    h.tasks,
		Rebooter: h.rebooter,
		FactoryReset: func(context.Context) error {
			h.resets.Add(1)
			return nil
		},
	})
	t.Cleanup(h.m.Stop)
	return h
}

// start runs the manager and waits for the session to come up.
func (h *harness) start(t *testing.T) {
	t.Helper()
	h.m.Start(context.Background())
	waitFor(t, "session connected", func() bool { return h.m.State() == Connected })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decode[T any](t *testing.T, p published) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(p.payload, &v); err != nil {
		t.Fatalf("decoding %s: %v", p.topic, err)
	}
	return v
}

// ============================================================================
// Parsing
// ============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantID   string
		wantName string
		wantErr  bool
	}{
		{"valid", `{"cmd_id":"7","command":"get_status"}`, "7", "get_status", false},
		{"with params", `{"cmd_id":"8","command":"set_mode","params":{"mode":0}}`, "8", "set_mode", false},
		{"null params", `{"cmd_id":"9","command":"reboot","params":null}`, "9", "reboot", false},
		{"not json", `set_mode 1`, UnknownCommandID, "", true},
		{"missing id", `{"command":"reboot"}`, UnknownCommandID, "", true},
		{"empty id", `{"cmd_id":"","command":"reboot"}`, UnknownCommandID, "", true},
		{"missing command keeps id", `{"cmd_id":"10"}`, "10", "", true},
		{"params not object keeps id", `{"cmd_id":"11","command":"set_mode","params":[1]}`, "11", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedCommand) {
				t.Errorf("error = %v, want ErrMalformedCommand", err)
			}
			if cmd.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", cmd.ID, tt.wantID)
			}
			if cmd.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", cmd.Name, tt.wantName)
			}
		})
	}
}

func TestParamsInt(t *testing.T) {
	p := Params{
		"int":    json.RawMessage(`3`),
		"float":  json.RawMessage(`2.9`),
		"true":   json.RawMessage(`true`),
		"false":  json.RawMessage(`false`),
		"string": json.RawMessage(`"42"`),
		"word":   json.RawMessage(`"fan"`),
		"null":   json.RawMessage(`null`),
	}
	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{"int", 3, false},
		{"float", 2, false},
		{"true", 1, false},
		{"false", 0, false},
		{"string", 42, false},
		{"null", -1, false},
		{"missing", -1, false},
		{"word", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := p.Int(tt.key, -1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Int(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Int(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Dispatch
// ============================================================================

// clockNotWrapped fails if a rejected timestamp moved the clock.
func clockNotWrapped(t *testing.T, h *harness) {
	t.Helper()
	ts, err := h.clock.Unix(context.Background())
	if err != nil {
		t.Fatalf("Unix() error = %v", err)
	}
	if ts < 1600000000 {
		t.Errorf("Unix() = %d, clock was set by a rejected timestamp", ts)
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantID     string
		wantStatus string
		wantErr    error
		check      func(t *testing.T, h *harness)
	}{
		{
			name:       "set_device on",
			payload:    `{"cmd_id":"1","command":"set_device","params":{"device":"light","state":1}}`,
			wantID:     "1",
			wantStatus: StatusSuccess,
			check: func(t *testing.T, h *harness) {
				if !h.device.Output(device.Light) {
					t.Error("light not switched on")
				}
			},
		},
		{
			name:       "set_device unknown output",
			payload:    `{"cmd_id":"2","command":"set_device","params":{"device":"heater","state":1}}`,
			wantID:     "2",
			wantStatus: StatusError,
			wantErr:    ErrInvalidParams,
		},
		{
			name:       "set_devices leaves -1 unchanged",
			payload:    `{"cmd_id":"3","command":"set_devices","params":{"fan":1,"ac":1}}`,
			wantID:     "3",
			wantStatus: StatusSuccess,
			check: func(t *testing.T, h *harness) {
				st := h.device.State()
				if !st.Fan || st.Light || !st.AC {
					t.Errorf("State() = %+v, want fan and ac on", st)
				}
			},
		},
		{
			name:       "set_mode off",
			payload:    `{"cmd_id":"4","command":"set_mode","params":{"mode":0}}`,
			wantID:     "4",
			wantStatus: StatusSuccess,
			check: func(t *testing.T, h *harness) {
				if h.mode.IsOn() {
					t.Error("mode still ON")
				}
			},
		},
		{
			name:       "set_mode invalid",
			payload:    `{"cmd_id":"5","command":"set_mode","params":{"mode":7}}`,
			wantID:     "5",
			wantStatus: StatusError,
			wantErr:    ErrInvalidParams,
		},
		{
			name:       "set_interval",
			payload:    `{"cmd_id":"6","command":"set_interval","params":{"interval":30}}`,
			wantID:     "6",
			wantStatus: StatusSuccess,
			check: func(t *testing.T, h *harness) {
				if got := h.device.IntervalSeconds(); got != 30 {
					t.Errorf("IntervalSeconds() = %d, want 30", got)
				}
			},
		},
		{
			name:       "set_interval out of range",
			payload:    `{"cmd_id":"7","command":"set_interval","params":{"interval":0}}`,
			wantID:     "7",
			wantStatus: StatusError,
			wantErr:    ErrInvalidParams,
			check: func(t *testing.T, h *harness) {
				if got := h.device.IntervalSeconds(); got != 5 {
					t.Errorf("IntervalSeconds() = %d, want unchanged 5", got)
				}
			},
		},
		{
			name:       "set_timestamp",
			payload:    `{"cmd_id":"8","command":"set_timestamp","params":{"timestamp":1800000000}}`,
			wantID:     "8",
			wantStatus: StatusSuccess,
			check: func(t *testing.T, h *harness) {
				ts, err := h.clock.Unix(context.Background())
				if err != nil {
					t.Fatalf("Unix() error = %v", err)
				}
				if ts < 1800000000 || ts > 1800000002 {
					t.Errorf("Unix() = %d, want about 1800000000", ts)
				}
			},
		},
		{
			name:       "set_timestamp beyond 32-bit seconds",
			payload:    `{"cmd_id":"8a","command":"set_timestamp","params":{"timestamp":4294967297}}`,
			wantID:     "8a",
			wantStatus: StatusError,
			wantErr:    ErrInvalidParams,
			check:      clockNotWrapped,
		},
		{
			name:       "set_timestamp in milliseconds",
			payload:    `{"cmd_id":"8b","command":"set_timestamp","params":{"timestamp":1800000000000}}`,
			wantID:     "8b",
			wantStatus: StatusError,
			wantErr:    ErrInvalidParams,
			check:      clockNotWrapped,
		},
		{
			name:       "reboot deferred",
			payload:    `{"cmd_id":"9","command":"reboot"}`,
			wantID:     "9",
			wantStatus: StatusSuccess,
			check: func(t *testing.T, h *harness) {
				if len(h.tasks.names) != 1 || h.tasks.names[0] != "reboot" {
					t.Fatalf("submitted = %v, want [reboot]", h.tasks.names)
				}
				if len(h.rebooter.reasons) != 0 {
					t.Fatal("reboot ran in the receive path")
				}
				if err := h.tasks.runs[0](context.Background()); err != nil {
					t.Fatalf("task error = %v", err)
				}
				if len(h.rebooter.reasons) != 1 {
					t.Errorf("reboots = %d, want 1", len(h.rebooter.reasons))
				}
			},
		},
		{
			name:       "factory_reset deferred",
			payload:    `{"cmd_id":"10","command":"factory_reset"}`,
			wantID:     "10",
			wantStatus: StatusSuccess,
			check: func(t *testing.T, h *harness) {
				if h.resets.Load() != 0 {
					t.Fatal("factory reset ran in the receive path")
				}
				if err := h.tasks.runs[0](context.Background()); err != nil {
					t.Fatalf("task error = %v", err)
				}
				if h.resets.Load() != 1 {
					t.Errorf("resets = %d, want 1", h.resets.Load())
				}
			},
		},
		{
			name:       "unknown command",
			payload:    `{"cmd_id":"11","command":"self_destruct"}`,
			wantID:     "11",
			wantStatus: StatusError,
			wantErr:    ErrUnknownCommand,
		},
		{
			name:       "malformed",
			payload:    `{"cmd_id":`,
			wantID:     UnknownCommandID,
			wantStatus: StatusError,
			wantErr:    ErrMalformedCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			resp := h.m.Dispatch(context.Background(), []byte(tt.payload))

			if resp.CmdID != tt.wantID {
				t.Errorf("CmdID = %q, want %q", resp.CmdID, tt.wantID)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q (message %q)", resp.Status, tt.wantStatus, resp.Message)
			}
			if tt.wantErr != nil && !strings.Contains(resp.Message, tt.wantErr.Error()) {
				t.Errorf("Message = %q, want it to mention %q", resp.Message, tt.wantErr)
			}
			if tt.wantStatus == StatusSuccess && resp.Message != "" {
				t.Errorf("Message = %q, want empty on success", resp.Message)
			}
			if tt.check != nil {
				tt.check(t, h)
			}
		})
	}
}

func TestDispatch_BusyWorker(t *testing.T) {
	h := newHarness(t)
	h.tasks.reject = true

	resp := h.m.Dispatch(context.Background(), []byte(`{"cmd_id":"r","command":"reboot"}`))
	if resp.Status != StatusError || !strings.Contains(resp.Message, ErrBusy.Error()) {
		t.Errorf("Dispatch() = %+v, want busy error", resp)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestStartStopIdempotent(t *testing.T) {
	h := newHarness(t)

	h.start(t)
	waitFor(t, "connect publishes", func() bool {
		return len(h.client.on(testTopics.Info())) > 0 && len(h.client.on(testTopics.State())) > 0
	})
	// Let the connect sequence settle before taking the baseline.
	time.Sleep(30 * time.Millisecond)
	infos := len(h.client.on(testTopics.Info()))
	states := len(h.client.on(testTopics.State()))

	// A second Start while CONNECTED changes nothing.
	h.m.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	if h.m.State() != Connected {
		t.Errorf("State() = %s, want CONNECTED", h.m.State())
	}
	if got := h.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	if got := h.client.subscribes(); got != 1 {
		t.Errorf("subscribes = %d, want 1", got)
	}
	if got := len(h.client.on(testTopics.Info())); got != infos {
		t.Errorf("info publishes = %d, want %d", got, infos)
	}
	if got := len(h.client.on(testTopics.State())); got != states {
		t.Errorf("state publishes = %d, want %d", got, states)
	}
	if !h.m.IsConnected() {
		t.Error("IsConnected() = false")
	}

	h.m.Stop()
	h.m.Stop()
	if h.m.State() != Stopped {
		t.Errorf("State() = %s, want STOPPED", h.m.State())
	}
	if h.client.closed != 1 {
		t.Errorf("Close() calls = %d, want 1", h.client.closed)
	}
	if h.m.IsConnected() {
		t.Error("IsConnected() = true after Stop")
	}
}

func TestStateListeners(t *testing.T) {
	h := newHarness(t)

	var (
		mu  sync.Mutex
		got []string
	)
	h.m.OnStateChange(func(old, cur State) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, old.String()+">"+cur.String())
	})

	h.start(t)
	h.m.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"STOPPED>CONNECTING", "CONNECTING>CONNECTED", "CONNECTED>STOPPED"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestDialRetry(t *testing.T) {
	h := newHarness(t)
	var attempts atomic.Int32
	h.m.dial = func(context.Context) (Client, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return h.client, nil
	}

	h.start(t)
	if got := attempts.Load(); got != 3 {
		t.Errorf("dial attempts = %d, want 3", got)
	}
}

func TestSubscribeFailureRedials(t *testing.T) {
	h := newHarness(t)
	h.client.subErr = errors.New("not authorised")

	h.m.Start(context.Background())
	waitFor(t, "second dial", func() bool { return h.dials.Load() >= 2 })
	if h.m.State() == Connected {
		t.Error("State() = CONNECTED without a command subscription")
	}
}

// ============================================================================
// Publishing
// ============================================================================

func TestConnectPublishesInfoAndState(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	waitFor(t, "info", func() bool { return len(h.client.on(testTopics.Info())) > 0 })
	info := h.client.on(testTopics.Info())[0]
	if info.qos != 1 || !info.retained {
		t.Errorf("info qos=%d retained=%v, want 1 true", info.qos, info.retained)
	}
	p := decode[InfoPayload](t, info)
	if p.ID != "node-1" || p.SSID != "greenhouse" || p.IP != "10.0.0.7" || p.Broker != "broker.local:1883" || p.Firmware != "1.2.0" {
		t.Errorf("info payload = %+v", p)
	}

	states := h.client.on(testTopics.State())
	if len(states) == 0 {
		t.Fatal("no state published on connect")
	}
	st := decode[StatePayload](t, states[0])
	if st.Mode != 1 || st.Interval != 5 || st.Fan != 0 {
		t.Errorf("state payload = %+v", st)
	}
	if states[0].qos != 1 || !states[0].retained {
		t.Errorf("state qos=%d retained=%v, want 1 true", states[0].qos, states[0].retained)
	}
}

func TestDataPublishedWhenOn(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	waitFor(t, "data", func() bool { return len(h.client.on(testTopics.Data())) > 0 })
	data := h.client.on(testTopics.Data())[0]
	if data.qos != 0 || data.retained {
		t.Errorf("data qos=%d retained=%v, want 0 false", data.qos, data.retained)
	}
	p := decode[DataPayload](t, data)
	want := DataPayload{Timestamp: 1700000000, Temperature: 21.5, Humidity: 40.25, Light: 300}
	if p != want {
		t.Errorf("data payload = %+v, want %+v", p, want)
	}
}

func TestDataSkippedWhenOff(t *testing.T) {
	h := newHarness(t)
	if err := h.mode.Set(context.Background(), mode.Off); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	h.start(t)

	time.Sleep(100 * time.Millisecond)
	if n := len(h.client.on(testTopics.Data())); n != 0 {
		t.Fatalf("data published %d times in OFF mode", n)
	}

	if err := h.mode.Set(context.Background(), mode.On); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	waitFor(t, "data after ON", func() bool { return len(h.client.on(testTopics.Data())) > 0 })
}

func TestDataSkippedBeforeFirstSample(t *testing.T) {
	h := newHarness(t)
	h.m.deps.Sensors = sensor.NewStore(0)
	h.start(t)

	time.Sleep(50 * time.Millisecond)
	if n := len(h.client.on(testTopics.Data())); n != 0 {
		t.Errorf("data published %d times with an empty store", n)
	}
}

func TestNotifyStateChanged(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	before := len(h.client.on(testTopics.State()))

	h.m.NotifyStateChanged()
	waitFor(t, "state republish", func() bool { return len(h.client.on(testTopics.State())) > before })
}

func TestStateBackup(t *testing.T) {
	h := newHarness(t)
	h.m.cfg.StateBackup = 30 * time.Millisecond
	h.start(t)

	waitFor(t, "backup state publishes", func() bool { return len(h.client.on(testTopics.State())) >= 3 })
}

func TestInfoOnIdentityChange(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	waitFor(t, "info", func() bool { return len(h.client.on(testTopics.Info())) == 1 })

	h.network.set("greenhouse", "10.0.0.9")
	waitFor(t, "info after address change", func() bool { return len(h.client.on(testTopics.Info())) == 2 })

	p := decode[InfoPayload](t, h.client.on(testTopics.Info())[1])
	if p.IP != "10.0.0.9" {
		t.Errorf("info ip = %q, want 10.0.0.9", p.IP)
	}
}

func TestReconnectRepublishes(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	waitFor(t, "info", func() bool { return len(h.client.on(testTopics.Info())) == 1 })

	h.client.drop()
	if h.m.State() != Connecting {
		t.Errorf("State() = %s after link loss, want CONNECTING", h.m.State())
	}

	h.client.restore()
	if h.m.State() != Connected {
		t.Errorf("State() = %s after reconnect, want CONNECTED", h.m.State())
	}
	waitFor(t, "info after reconnect", func() bool { return len(h.client.on(testTopics.Info())) == 2 })
}

func TestGetStatusPublishesAllChannels(t *testing.T) {
	h := newHarness(t)
	if err := h.mode.Set(context.Background(), mode.Off); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	h.start(t)
	waitFor(t, "info", func() bool { return len(h.client.on(testTopics.Info())) == 1 })

	h.client.deliver(t, testTopics.Command(), `{"cmd_id":"s","command":"get_status"}`)

	if n := len(h.client.on(testTopics.Data())); n != 1 {
		t.Errorf("data publishes = %d, want 1", n)
	}
	if n := len(h.client.on(testTopics.Info())); n != 2 {
		t.Errorf("info publishes = %d, want 2", n)
	}
}

func TestEveryCommandAnsweredOnce(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	payloads := []string{
		`{"cmd_id":"a","command":"set_device","params":{"device":"fan","state":1}}`,
		`{"cmd_id":"b","command":"nope"}`,
		`garbage`,
		`{"cmd_id":"c","command":"set_interval","params":{"interval":"x"}}`,
		`{"cmd_id":"d","command":"get_status"}`,
	}
	for _, p := range payloads {
		h.client.deliver(t, testTopics.Command(), p)
	}

	responses := h.client.on(testTopics.Response())
	if len(responses) != len(payloads) {
		t.Fatalf("responses = %d, want %d", len(responses), len(payloads))
	}

	wantIDs := []string{"a", "b", UnknownCommandID, "c", "d"}
	wantStatus := []string{StatusSuccess, StatusError, StatusError, StatusError, StatusSuccess}
	for i, r := range responses {
		if r.qos != 1 || !r.retained {
			t.Errorf("response %d qos=%d retained=%v, want 1 true", i, r.qos, r.retained)
		}
		resp := decode[Response](t, r)
		if resp.CmdID != wantIDs[i] || resp.Status != wantStatus[i] {
			t.Errorf("response %d = %+v, want id %q status %q", i, resp, wantIDs[i], wantStatus[i])
		}
	}
}

func TestPublishDroppedWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.client.drop()
	before := len(h.client.on(testTopics.State()))

	h.m.NotifyStateChanged()
	time.Sleep(50 * time.Millisecond)
	if n := len(h.client.on(testTopics.State())); n != before {
		t.Errorf("state publishes = %d while disconnected, want %d", n, before)
	}
}
