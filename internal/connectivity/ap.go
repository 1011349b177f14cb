package connectivity

import (
	"context"

	"github.com/nerrad567/gray-logic-node/internal/process"
)

// DaemonAccessPoint runs the provisioning access point as supervised
// daemons: hostapd for the radio, optionally a DHCP server.
type DaemonAccessPoint struct {
	group *process.Group
}

// APConfig names the daemons backing the access point.
type APConfig struct {
	HostapdBinary string
	HostapdConfig string

	// DHCPBinary is optional; leave empty when addressing is external.
	DHCPBinary string
	DHCPArgs   []string
}

// NewDaemonAccessPoint builds the daemon group. logger may be nil.
func NewDaemonAccessPoint(cfg APConfig, logger process.Logger) *DaemonAccessPoint {
	members := []*process.Manager{
		process.NewManager(process.DefaultConfig("hostapd", cfg.HostapdBinary, []string{cfg.HostapdConfig})),
	}
	if cfg.DHCPBinary != "" {
		members = append(members, process.NewManager(process.DefaultConfig("dhcp", cfg.DHCPBinary, cfg.DHCPArgs)))
	}
	if logger != nil {
		for _, m := range members {
			m.SetLogger(logger)
		}
	}
	return &DaemonAccessPoint{group: process.NewGroup(members...)}
}

// Start launches the daemons in order.
func (a *DaemonAccessPoint) Start(ctx context.Context) error {
	return a.group.Start(ctx)
}

// Stop terminates the daemons in reverse order.
func (a *DaemonAccessPoint) Stop() error {
	return a.group.Stop()
}

// Running reports whether every daemon is up.
func (a *DaemonAccessPoint) Running() bool {
	return a.group.Running()
}

// Stats returns the supervisor stats of every daemon.
func (a *DaemonAccessPoint) Stats() []process.Stats {
	return a.group.Stats()
}
