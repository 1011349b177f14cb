package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/kvstore"
)

// Persistence keys for station credentials.
const (
	KeySSID        = "wifi/ssid"
	KeyPassword    = "wifi/password"
	KeyProvisioned = "wifi/provisioned"
)

// Policy defaults.
const (
	DefaultMaxRetry       = 5
	DefaultRetryDelay     = 5 * time.Second
	DefaultRSSIInterval   = 10 * time.Second
	DefaultRSSIThreshold  = -75
	DefaultConnectTimeout = 30 * time.Second
)

// Policy tunes retries and link monitoring.
type Policy struct {
	// MaxRetry consecutive failures send the machine to PROVISIONING.
	MaxRetry int

	// RetryDelay separates connection attempts.
	RetryDelay time.Duration

	// RSSIInterval is the signal check period while CONNECTED.
	RSSIInterval time.Duration

	// RSSIThreshold is the dBm level below which a warning is logged.
	RSSIThreshold int

	// ConnectTimeout bounds one association attempt.
	ConnectTimeout time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetry <= 0 {
		p.MaxRetry = DefaultMaxRetry
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.RSSIInterval <= 0 {
		p.RSSIInterval = DefaultRSSIInterval
	}
	if p.RSSIThreshold == 0 {
		p.RSSIThreshold = DefaultRSSIThreshold
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	return p
}

// Listener observes state transitions. It runs on the machine's goroutine
// after the transition is recorded.
type Listener func(old, current State)

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

// Machine is the connectivity state machine.
//
// Run drives it: association attempts, retry delays and signal checks all
// happen on the Run goroutine, which feeds their outcomes to HandleEvent.
// Other goroutines may call HandleEvent, Status, Reconnect, ForgetNetwork
// and SubmitCredentials.
type Machine struct {
	link     Link
	ap       AccessPoint
	store    kvstore.Store
	rebooter Rebooter
	policy   Policy
	logger   Logger

	mu          sync.Mutex
	state       State
	retry       int
	rssi        int
	ip          string
	creds       Credentials
	provisioned bool
	apRunning   bool

	listenersMu sync.RWMutex
	listeners   []Listener

	wake chan struct{}
}

// New creates a machine in DISCONNECTED. ap may be nil when provisioning
// is handled outside the node.
func New(link Link, ap AccessPoint, store kvstore.Store, rebooter Rebooter, policy Policy) *Machine {
	return &Machine{
		link:     link,
		ap:       ap,
		store:    store,
		rebooter: rebooter,
		policy:   policy.withDefaults(),
		logger:   noopLogger{},
		state:    Disconnected,
		wake:     make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(l Logger) {
	m.logger = l
}

// OnStateChange registers a listener. Listeners run in registration order.
func (m *Machine) OnStateChange(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of state and link details.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:       m.state,
		SSID:        m.creds.SSID,
		IP:          m.ip,
		RSSI:        m.rssi,
		RetryCount:  m.retry,
		Provisioned: m.provisioned,
	}
}

// RetryCount returns the number of consecutive failed attempts.
func (m *Machine) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

// HandleEvent applies one event and returns the resulting state.
//
// Transitions:
//
//	DISCONNECTED --connect--------> CONNECTING
//	CONNECTING   --link_up--------> CONNECTED (retry count reset)
//	CONNECTING   --link_failed----> DISCONNECTED, or PROVISIONING once
//	                                 the retry count reaches MaxRetry
//	CONNECTED    --link_lost------> DISCONNECTED
//	any          --no_credentials-> PROVISIONING
//
// Events that do not apply to the current state are ignored. In
// particular failures while PROVISIONING leave the retry count alone.
func (m *Machine) HandleEvent(ctx context.Context, ev Event) State {
	m.mu.Lock()
	old := m.state
	next := old
	exhausted := false

	switch ev {
	case EventConnect:
		if old == Disconnected {
			next = Connecting
		}
	case EventLinkUp:
		if old == Connecting {
			next = Connected
			m.retry = 0
		}
	case EventLinkFailed:
		if old == Connecting || old == Disconnected {
			m.retry++
			next = Disconnected
			if m.retry >= m.policy.MaxRetry {
				next = Provisioning
				exhausted = true
			}
		}
	case EventLinkLost:
		if old == Connected {
			next = Disconnected
			m.ip = ""
		}
	case EventNoCredentials:
		next = Provisioning
	}
	m.state = next
	retry := m.retry
	m.mu.Unlock()

	if next == old {
		m.logger.Debug("connectivity event ignored", "event", ev.String(), "state", old.String())
		return next
	}

	m.logger.Info("connectivity state changed",
		"from", old.String(),
		"to", next.String(),
		"event", ev.String(),
		"retry_count", retry,
	)

	if next == Provisioning {
		if exhausted {
			m.logger.Warn("connection retries exhausted, entering provisioning", "attempts", retry)
			m.clearProvisioned(ctx)
		}
		m.startAccessPoint(ctx)
	}

	m.notify(old, next)
	return next
}

// Reconnect requests an immediate attempt when DISCONNECTED.
func (m *Machine) Reconnect() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Scan lists visible networks.
func (m *Machine) Scan(ctx context.Context) ([]Network, error) {
	return m.link.Scan(ctx)
}

// SubmitCredentials stores new station credentials and schedules a reboot.
// Only accepted in PROVISIONING.
func (m *Machine) SubmitCredentials(ctx context.Context, ssid, password string) error {
	if m.State() != Provisioning {
		return ErrNotProvisioning
	}
	if err := validateCredentials(ssid, password); err != nil {
		return err
	}

	for _, kv := range [][2]string{{KeySSID, ssid}, {KeyPassword, password}} {
		if err := m.store.Set(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("saving credentials: %w", err)
		}
	}
	if err := kvstore.SetBool(ctx, m.store, KeyProvisioned, true); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	m.mu.Lock()
	m.creds = Credentials{SSID: ssid, Password: password}
	m.provisioned = true
	m.mu.Unlock()

	m.logger.Info("credentials provisioned, rebooting", "ssid", ssid)
	m.rebooter.Reboot("credentials provisioned")
	return nil
}

// ForgetNetwork clears stored credentials, moves to DISCONNECTED and
// reboots. The node comes back up in PROVISIONING.
func (m *Machine) ForgetNetwork(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeySSID, KeyPassword, KeyProvisioned} {
		if err := m.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	old := m.state
	m.state = Disconnected
	m.retry = 0
	m.ip = ""
	m.creds = Credentials{}
	m.provisioned = false
	m.mu.Unlock()

	m.logger.Warn("network forgotten, rebooting", "from", old.String())
	if old == Provisioning {
		m.stopAccessPoint()
	}
	if old != Disconnected {
		m.notify(old, Disconnected)
	}

	m.rebooter.Reboot("forget network")
	if len(errs) > 0 {
		return fmt.Errorf("clearing credentials: %w", errors.Join(errs...))
	}
	return nil
}

// Run loads stored credentials and drives the machine until ctx ends.
func (m *Machine) Run(ctx context.Context) error {
	if m.loadCredentials(ctx) {
		m.HandleEvent(ctx, EventConnect)
	} else {
		m.logger.Info("no stored credentials")
		m.HandleEvent(ctx, EventNoCredentials)
	}

	defer m.stopAccessPoint()

	for {
		if ctx.Err() != nil {
			return nil
		}

		switch m.State() {
		case Connecting:
			m.attempt(ctx)
		case Connected:
			m.monitor(ctx)
		case Disconnected:
			if m.pause(ctx, m.policy.RetryDelay) {
				m.HandleEvent(ctx, EventConnect)
			}
		case Provisioning:
			// Leaves only by reboot.
			<-ctx.Done()
		}
	}
}

// loadCredentials reads stored credentials and reports whether a
// connection can be attempted.
func (m *Machine) loadCredentials(ctx context.Context) bool {
	ssid, err := m.store.Get(ctx, KeySSID)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		m.logger.Error("reading stored ssid failed", "error", err)
	}
	password, err := m.store.Get(ctx, KeyPassword)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		m.logger.Error("reading stored password failed", "error", err)
	}
	provisioned, err := kvstore.GetBool(ctx, m.store, KeyProvisioned, false)
	if err != nil {
		m.logger.Warn("reading provisioned flag failed", "error", err)
	}

	m.mu.Lock()
	m.creds = Credentials{SSID: ssid, Password: password}
	m.provisioned = provisioned
	m.mu.Unlock()

	return provisioned && ssid != ""
}

func (m *Machine) attempt(ctx context.Context) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	m.logger.Info("connecting", "ssid", creds.SSID, "attempt", m.RetryCount()+1)

	attemptCtx, cancel := context.WithTimeout(ctx, m.policy.ConnectTimeout)
	err := m.link.Connect(attemptCtx, creds.SSID, creds.Password)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Warn("connection attempt failed", "ssid", creds.SSID, "error", err)
		m.HandleEvent(ctx, EventLinkFailed)
		return
	}

	ip, err := m.link.Address(ctx)
	if err != nil {
		m.logger.Warn("reading address failed", "error", err)
	}
	rssi, _ := m.link.RSSI(ctx) //nolint:errcheck // Informational; monitor reports failures

	m.mu.Lock()
	m.ip = ip
	m.rssi = rssi
	m.mu.Unlock()

	m.HandleEvent(ctx, EventLinkUp)
}

// monitor samples signal strength until the link drops or ctx ends.
func (m *Machine) monitor(ctx context.Context) {
	ticker := time.NewTicker(m.policy.RSSIInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.State() != Connected {
			return
		}

		rssi, err := m.link.RSSI(ctx)
		if errors.Is(err, ErrLinkDown) {
			m.logger.Warn("wireless link lost")
			m.HandleEvent(ctx, EventLinkLost)
			return
		}
		if err != nil {
			m.logger.Warn("reading signal strength failed", "error", err)
			continue
		}

		m.mu.Lock()
		m.rssi = rssi
		m.mu.Unlock()

		if rssi < m.policy.RSSIThreshold {
			m.logger.Warn("weak wireless signal", "rssi", rssi, "threshold", m.policy.RSSIThreshold)
		} else {
			m.logger.Debug("wireless signal", "rssi", rssi)
		}
	}
}

// pause waits d, returning early on Reconnect. Reports false if ctx ended.
func (m *Machine) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-m.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (m *Machine) clearProvisioned(ctx context.Context) {
	if err := kvstore.SetBool(ctx, m.store, KeyProvisioned, false); err != nil {
		m.logger.Error("clearing provisioned flag failed", "error", err)
	}
	m.mu.Lock()
	m.provisioned = false
	m.mu.Unlock()
}

func (m *Machine) startAccessPoint(ctx context.Context) {
	if m.ap == nil {
		return
	}
	m.mu.Lock()
	running := m.apRunning
	m.mu.Unlock()
	if running {
		return
	}

	if err := m.link.Disconnect(ctx); err != nil {
		m.logger.Debug("station disconnect before access point failed", "error", err)
	}
	if err := m.ap.Start(ctx); err != nil {
		m.logger.Error("starting access point failed", "error", err)
		return
	}

	m.mu.Lock()
	m.apRunning = true
	m.mu.Unlock()
	m.logger.Info("access point started")
}

func (m *Machine) stopAccessPoint() {
	m.mu.Lock()
	running := m.apRunning
	m.apRunning = false
	m.mu.Unlock()

	if !running || m.ap == nil {
		return
	}
	if err := m.ap.Stop(); err != nil {
		m.logger.Warn("stopping access point failed", "error", err)
	}
}

func (m *Machine) notify(old, next State) {
	m.listenersMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		l(old, next)
	}
}

// validateCredentials checks WPA2 limits: SSID 1-32 bytes, passphrase
// empty (open network) or 8-63 characters.
func validateCredentials(ssid, password string) error {
	if ssid == "" || len(ssid) > 32 {
		return fmt.Errorf("%w: ssid must be 1-32 bytes", ErrInvalidCredentials)
	}
	if password != "" && (len(password) < 8 || len(password) > 63) {
		return fmt.Errorf("%w: password must be 8-63 characters", ErrInvalidCredentials)
	}
	return nil
}
