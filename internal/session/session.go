package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/connectivity"
	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/mode"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

// Channel delivery parameters.
const (
	dataQoS      byte = 0
	stateQoS     byte = 1
	infoQoS      byte = 1
	responseQoS  byte = 1
	commandQoS   byte = 1
	dataRetained      = false
)

// Defaults applied by New for zero Config fields.
const (
	DefaultStateBackup = 60 * time.Second
	DefaultTick        = time.Second
	DefaultDialRetry   = 5 * time.Second
)

// State is the broker session state.
type State int

const (
	Stopped State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Client is the broker connection used by the Manager. *mqtt.Client
// satisfies it.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	IsConnected() bool
	Broker() string
	Close() error
}

// Dialer opens a broker connection. It is called again after a failure.
type Dialer func(ctx context.Context) (Client, error)

// Clock is the node clock: read for payload timestamps, set by set_timestamp.
type Clock interface {
	Unix(ctx context.Context) (uint32, error)
	Set(ts uint32)
}

// Network reports the station link identity for the info payload.
type Network interface {
	Status() connectivity.Status
}

// Deferrer runs blocking work outside the receive path. *input.Worker
// satisfies it. Submit reports false when the work was not accepted.
type Deferrer interface {
	Submit(name string, run func(ctx context.Context) error) bool
}

// Rebooter schedules a delayed restart.
type Rebooter interface {
	Reboot(reason string)
}

// Deps are the components the session reads and mutates.
type Deps struct {
	Sensors  *sensor.Store
	Mode     *mode.Machine
	Device   *device.Controller
	Clock    Clock
	Network  Network
	Tasks    Deferrer
	Rebooter Rebooter

	// FactoryReset erases storage and schedules a reboot. Optional.
	FactoryReset func(ctx context.Context) error
}

// Config tunes the Manager.
type Config struct {
	Topics   mqtt.Topics
	Firmware string

	// StateBackup is the unconditional state republish period.
	StateBackup time.Duration

	// Tick is the publisher loop resolution.
	Tick time.Duration

	// DialRetry is the wait between failed dial attempts.
	DialRetry time.Duration
}

// Logger defines the logging interface used by the Manager.
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

// Manager owns the broker session: it dials, publishes telemetry on the
// data, state and info channels, and answers commands.
//
// Publishing is best effort. There is no outbound queue; a publish that
// fails is logged and dropped.
type Manager struct {
	cfg    Config
	dial   Dialer
	deps   Deps
	logger Logger

	mu     sync.Mutex
	state  State
	client Client
	cancel context.CancelFunc
	done   chan struct{}

	listenersMu sync.RWMutex
	listeners   []func(old, cur State)

	// dispatchMu serialises command execution.
	dispatchMu sync.Mutex

	stateDirty chan struct{}
	reconnect  chan struct{}
	resetData  chan struct{}
}

// New creates a stopped Manager.
func New(cfg Config, dial Dialer, deps Deps) *Manager {
	if cfg.StateBackup <= 0 {
		cfg.StateBackup = DefaultStateBackup
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.DialRetry <= 0 {
		cfg.DialRetry = DefaultDialRetry
	}
	return &Manager{
		cfg:        cfg,
		dial:       dial,
		deps:       deps,
		logger:     noopLogger{},
		stateDirty: make(chan struct{}, 1),
		reconnect:  make(chan struct{}, 1),
		resetData:  make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(l Logger) {
	m.logger = l
}

// OnStateChange registers fn to run on every session state transition.
// fn runs synchronously and must not block.
func (m *Manager) OnStateChange(fn func(old, cur State)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the session is up and the broker link is live.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Connected && m.client != nil && m.client.IsConnected()
}

// Start begins dialing in the background. Calling Start on a running
// Manager does nothing.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.mu.Unlock()

	m.logger.Info("session starting", "topic", m.cfg.Topics.Device())
	m.setState(Connecting)
	go m.run(runCtx, done)
}

// Stop closes the session and waits for the publisher to exit. Calling
// Stop on a stopped Manager does nothing.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("session stopped")
}

// NotifyStateChanged requests a state publish. Requests made while one is
// pending are coalesced. Safe to call from mode and output callbacks.
func (m *Manager) NotifyStateChanged() {
	signal(m.stateDirty)
}

func (m *Manager) resetDataTimer() {
	signal(m.resetData)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	old := m.state
	m.state = next
	m.mu.Unlock()

	if old == next {
		return
	}
	m.logger.Info("session state changed", "from", old.String(), "to", next.String())

	m.listenersMu.RLock()
	listeners := make([]func(old, cur State), len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(old, next)
	}
}

func (m *Manager) setClient(c Client) {
	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
}

func (m *Manager) currentClient() Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// run dials until a session is served, and dials again when serving
// fails, until ctx is cancelled.
func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.setState(Stopped)

	for {
		client, err := m.dial(ctx)
		if err == nil {
			err = m.serve(ctx, client)
		}
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("broker session failed, retrying", "error", err, "retry_in", m.cfg.DialRetry)
		m.setState(Connecting)

		timer := time.NewTimer(m.cfg.DialRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve subscribes for commands and runs the publisher loop until ctx is
// cancelled. The client is closed on return.
func (m *Manager) serve(ctx context.Context, client Client) error {
	m.setClient(client)
	defer func() {
		m.setClient(nil)
		if err := client.Close(); err != nil {
			m.logger.Debug("closing broker client", "error", err)
		}
	}()

	client.SetOnDisconnect(func(err error) {
		m.logger.Warn("broker connection lost", "error", err)
		m.setState(Connecting)
	})
	client.SetOnConnect(func() {
		m.logger.Info("broker connection restored")
		m.setState(Connected)
		signal(m.reconnect)
	})

	handler := func(_ string, payload []byte) error {
		m.respond(ctx, m.Dispatch(ctx, payload))
		return nil
	}
	if err := client.Subscribe(m.cfg.Topics.Command(), commandQoS, handler); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	m.setState(Connected)
	m.publishInfo(ctx)
	m.publishState(ctx)

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	var (
		lastData  time.Time
		lastState = time.Now()
		identity  = m.identity()
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-m.stateDirty:
			m.publishState(ctx)
			lastState = time.Now()

		case <-m.reconnect:
			m.publishInfo(ctx)
			m.publishState(ctx)
			lastState = time.Now()

		case <-m.resetData:
			lastData = time.Now()

		case now := <-ticker.C:
			if !client.IsConnected() {
				continue
			}
			if m.deps.Mode.IsOn() && (lastData.IsZero() || now.Sub(lastData) >= m.deps.Device.Interval()) {
				m.publishData(ctx)
				lastData = now
			}
			if now.Sub(lastState) >= m.cfg.StateBackup {
				m.publishState(ctx)
				lastState = now
			}
			if id := m.identity(); id != identity {
				identity = id
				m.publishInfo(ctx)
			}
		}
	}
}

type networkIdentity struct {
	ssid string
	ip   string
}

func (m *Manager) identity() networkIdentity {
	if m.deps.Network == nil {
		return networkIdentity{}
	}
	st := m.deps.Network.Status()
	return networkIdentity{ssid: st.SSID, ip: st.IP}
}

func (m *Manager) now(ctx context.Context) uint32 {
	if m.deps.Clock == nil {
		return 0
	}
	ts, err := m.deps.Clock.Unix(ctx)
	if err != nil {
		m.logger.Debug("clock unavailable", "error", err)
		return 0
	}
	return ts
}

func (m *Manager) publishData(_ context.Context) {
	sample, err := m.deps.Sensors.Get()
	if err != nil {
		if errors.Is(err, sensor.ErrNotInitialized) {
			m.logger.Debug("no sensor sample yet, data publish skipped")
		} else {
			m.logger.Warn("reading sensor store failed", "error", err)
		}
		return
	}
	m.publish(m.cfg.Topics.Data(), dataQoS, dataRetained, DataPayload{
		Timestamp:   sample.Timestamp,
		Temperature: sample.Temperature,
		Humidity:    sample.Humidity,
		Light:       sample.Light,
	})
}

func (m *Manager) publishState(ctx context.Context) {
	st := m.deps.Device.State()
	m.publish(m.cfg.Topics.State(), stateQoS, true, StatePayload{
		Timestamp: m.now(ctx),
		Mode:      int(m.deps.Mode.Get()),
		Interval:  st.Interval,
		Fan:       boolToInt(st.Fan),
		Light:     boolToInt(st.Light),
		AC:        boolToInt(st.AC),
	})
}

func (m *Manager) publishInfo(ctx context.Context) {
	var broker string
	if c := m.currentClient(); c != nil {
		broker = c.Broker()
	}
	id := m.identity()
	m.publish(m.cfg.Topics.Info(), infoQoS, true, InfoPayload{
		Timestamp: m.now(ctx),
		ID:        m.cfg.Topics.DeviceID,
		SSID:      id.ssid,
		IP:        id.ip,
		Broker:    broker,
		Firmware:  m.cfg.Firmware,
	})
}

func (m *Manager) respond(_ context.Context, resp Response) {
	m.publish(m.cfg.Topics.Response(), responseQoS, true, resp)
}

// publish encodes v and sends it once. Failures are dropped.
func (m *Manager) publish(topic string, qos byte, retained bool, v any) {
	client := m.currentClient()
	if client == nil || !client.IsConnected() {
		m.logger.Debug("publish skipped, not connected", "topic", topic)
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("encoding payload failed", "topic", topic, "error", err)
		return
	}
	if err := client.Publish(topic, payload, qos, retained); err != nil {
		m.logger.Warn("publish dropped", "topic", topic, "error", err)
	}
}
