package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/kvstore"
)

type fakeLink struct {
	mu          sync.Mutex
	connectErr  error
	connects    int
	rssi        int
	rssiErr     error
	addr        string
	networks    []Network
	disconnects int
}

func (f *fakeLink) Connect(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeLink) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeLink) RSSI(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rssi, f.rssiErr
}

func (f *fakeLink) Address(context.Context) (string, error) { return f.addr, nil }

func (f *fakeLink) Scan(context.Context) ([]Network, error) { return f.networks, nil }

func (f *fakeLink) setRSSIErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rssiErr = err
}

func (f *fakeLink) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type fakeAP struct {
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
}

func (a *fakeAP) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	a.running = true
	return nil
}

func (a *fakeAP) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	a.running = false
	return nil
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

func (r *fakeRebooter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

type harness struct {
	m        *Machine
	link     *fakeLink
	ap       *fakeAP
	store    *kvstore.Memory
	rebooter *fakeRebooter
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	h := &harness{
		link:     &fakeLink{rssi: -60, addr: "192.168.1.50"},
		ap:       &fakeAP{},
		store:    kvstore.NewMemory(),
		rebooter: &fakeRebooter{},
	}
	h.m = New(h.link, h.ap, h.store, h.rebooter, policy)
	return h
}

func (h *harness) provision(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_ = h.store.Set(ctx, KeySSID, "greenhouse")
	_ = h.store.Set(ctx, KeyPassword, "hunter2hunter2")
	_ = kvstore.SetBool(ctx, h.store, KeyProvisioned, true)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ============================================================================
// Transition table
// ============================================================================

func TestHandleEvent_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
		want  State
	}{
		{"connect from disconnected", Disconnected, EventConnect, Connecting},
		{"connect while connecting ignored", Connecting, EventConnect, Connecting},
		{"link up from connecting", Connecting, EventLinkUp, Connected},
		{"link up while disconnected ignored", Disconnected, EventLinkUp, Disconnected},
		{"failure from connecting", Connecting, EventLinkFailed, Disconnected},
		{"lost from connected", Connected, EventLinkLost, Disconnected},
		{"lost while connecting ignored", Connecting, EventLinkLost, Connecting},
		{"no credentials", Disconnected, EventNoCredentials, Provisioning},
		{"connect while provisioning ignored", Provisioning, EventConnect, Provisioning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Policy{})
			h.m.state = tt.from
			if got := h.m.HandleEvent(context.Background(), tt.event); got != tt.want {
				t.Errorf("HandleEvent(%s) from %s = %s, want %s", tt.event, tt.from, got, tt.want)
			}
		})
	}
}

func TestRetryBound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Policy{MaxRetry: 5})
	h.provision(t)

	for i := 1; i <= 5; i++ {
		h.m.HandleEvent(ctx, EventConnect)
		got := h.m.HandleEvent(ctx, EventLinkFailed)
		if i < 5 && got != Disconnected {
			t.Fatalf("after failure %d state = %s, want DISCONNECTED", i, got)
		}
	}

	if got := h.m.State(); got != Provisioning {
		t.Fatalf("after 5 failures state = %s, want PROVISIONING", got)
	}
	if h.m.RetryCount() != 5 {
		t.Errorf("RetryCount() = %d, want 5", h.m.RetryCount())
	}
	if h.ap.starts != 1 {
		t.Errorf("access point starts = %d, want 1", h.ap.starts)
	}
	if ok, _ := kvstore.GetBool(ctx, h.store, KeyProvisioned, true); ok {
		t.Error("provisioned flag not cleared on retry exhaustion")
	}

	// A sixth failure in PROVISIONING changes nothing.
	if got := h.m.HandleEvent(ctx, EventLinkFailed); got != Provisioning {
		t.Errorf("sixth failure moved state to %s", got)
	}
	if h.m.RetryCount() != 5 {
		t.Errorf("RetryCount() after sixth failure = %d, want 5", h.m.RetryCount())
	}
}

func TestLinkUpResetsRetryCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Policy{MaxRetry: 5})

	for range 3 {
		h.m.HandleEvent(ctx, EventConnect)
		h.m.HandleEvent(ctx, EventLinkFailed)
	}
	h.m.HandleEvent(ctx, EventConnect)
	h.m.HandleEvent(ctx, EventLinkUp)

	if h.m.RetryCount() != 0 {
		t.Errorf("RetryCount() = %d after link up, want 0", h.m.RetryCount())
	}
}

func TestListenersSeeTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Policy{})

	var got []string
	h.m.OnStateChange(func(old, current State) {
		got = append(got, old.String()+">"+current.String())
	})

	h.m.HandleEvent(ctx, EventConnect)
	h.m.HandleEvent(ctx, EventLinkUp)
	h.m.HandleEvent(ctx, EventLinkUp)
	h.m.HandleEvent(ctx, EventLinkLost)

	want := []string{"DISCONNECTED>CONNECTING", "CONNECTING>CONNECTED", "CONNECTED>DISCONNECTED"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// ============================================================================
// Run loop
// ============================================================================

func TestRun_NoCredentialsStartsProvisioning(t *testing.T) {
	h := newHarness(t, Policy{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.m.Run(ctx)
		close(done)
	}()

	waitFor(t, "provisioning", func() bool { return h.m.State() == Provisioning })
	if h.link.connectCount() != 0 {
		t.Error("connection attempted without credentials")
	}

	cancel()
	<-done
	if h.ap.stops != 1 {
		t.Errorf("access point stops = %d, want 1 on shutdown", h.ap.stops)
	}
}

func TestRun_ConnectsAndDetectsLinkLoss(t *testing.T) {
	h := newHarness(t, Policy{RetryDelay: time.Hour, RSSIInterval: 10 * time.Millisecond})
	h.provision(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.m.Run(ctx) //nolint:errcheck // Returns nil on cancel

	waitFor(t, "connected", func() bool { return h.m.State() == Connected })
	st := h.m.Status()
	if st.SSID != "greenhouse" || st.IP != "192.168.1.50" || st.RSSI != -60 || !st.Provisioned {
		t.Errorf("Status() = %+v", st)
	}

	h.link.setRSSIErr(ErrLinkDown)
	waitFor(t, "disconnected", func() bool { return h.m.State() == Disconnected })

	// Reconnect skips the hour-long retry delay.
	h.link.setRSSIErr(nil)
	h.m.Reconnect()
	waitFor(t, "reconnected", func() bool { return h.m.State() == Connected })
	if h.link.connectCount() != 2 {
		t.Errorf("connects = %d, want 2", h.link.connectCount())
	}
}

func TestRun_ExhaustsRetriesIntoProvisioning(t *testing.T) {
	h := newHarness(t, Policy{MaxRetry: 3, RetryDelay: time.Millisecond})
	h.provision(t)
	h.link.connectErr = errors.New("association rejected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.m.Run(ctx) //nolint:errcheck // Returns nil on cancel

	waitFor(t, "provisioning", func() bool { return h.m.State() == Provisioning })
	if h.link.connectCount() != 3 {
		t.Errorf("connects = %d, want 3", h.link.connectCount())
	}
}

// ============================================================================
// Provisioning and reset
// ============================================================================

func TestSubmitCredentials(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Policy{})

	if err := h.m.SubmitCredentials(ctx, "greenhouse", "hunter2hunter2"); !errors.Is(err, ErrNotProvisioning) {
		t.Fatalf("SubmitCredentials outside provisioning error = %v", err)
	}

	h.m.HandleEvent(ctx, EventNoCredentials)

	tests := []struct {
		name     string
		ssid     string
		password string
		wantErr  error
	}{
		{"empty ssid", "", "hunter2hunter2", ErrInvalidCredentials},
		{"long ssid", "this-ssid-is-way-longer-than-32-bytes", "hunter2hunter2", ErrInvalidCredentials},
		{"short password", "greenhouse", "short", ErrInvalidCredentials},
		{"open network", "cafe", "", nil},
		{"wpa2", "greenhouse", "hunter2hunter2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.m.SubmitCredentials(ctx, tt.ssid, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SubmitCredentials() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if ssid, _ := h.store.Get(ctx, KeySSID); ssid != "greenhouse" {
		t.Errorf("stored ssid = %q", ssid)
	}
	if ok, _ := kvstore.GetBool(ctx, h.store, KeyProvisioned, false); !ok {
		t.Error("provisioned flag not set")
	}
	if h.rebooter.count() != 2 {
		t.Errorf("reboots = %d, want 2", h.rebooter.count())
	}
}

func TestForgetNetwork(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Policy{})
	h.provision(t)
	h.m.loadCredentials(ctx)
	h.m.HandleEvent(ctx, EventConnect)
	h.m.HandleEvent(ctx, EventLinkUp)

	var last State = -1
	h.m.OnStateChange(func(_, current State) { last = current })

	if err := h.m.ForgetNetwork(ctx); err != nil {
		t.Fatalf("ForgetNetwork() error = %v", err)
	}
	if h.m.State() != Disconnected || last != Disconnected {
		t.Errorf("state = %s, listener saw %s, want DISCONNECTED", h.m.State(), last)
	}
	for _, key := range []string{KeySSID, KeyPassword, KeyProvisioned} {
		if _, err := h.store.Get(ctx, key); !errors.Is(err, kvstore.ErrNotFound) {
			t.Errorf("%s still stored", key)
		}
	}
	if h.rebooter.count() != 1 {
		t.Errorf("reboots = %d, want 1", h.rebooter.count())
	}
}

func TestForgetNetwork_StopsAccessPoint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Policy{})
	h.m.HandleEvent(ctx, EventNoCredentials)

	_ = h.m.ForgetNetwork(ctx)
	if h.ap.stops != 1 {
		t.Errorf("access point stops = %d, want 1", h.ap.stops)
	}
}
