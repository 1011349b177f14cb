package connectivity

import (
	"context"
	"fmt"
)

// State is the station-mode lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Provisioning
)

// String returns the upper-case state name used in logs and the API.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Provisioning:
		return "PROVISIONING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is an input to the state machine.
type Event int

const (
	// EventConnect starts an association attempt: startup with stored
	// credentials, the retry timer firing, or an explicit reconnect.
	EventConnect Event = iota

	// EventLinkUp means the link is associated and has an address.
	EventLinkUp

	// EventLinkFailed means an association attempt failed.
	EventLinkFailed

	// EventLinkLost means an established link dropped.
	EventLinkLost

	// EventNoCredentials means nothing is stored to connect with.
	EventNoCredentials
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventLinkUp:
		return "link_up"
	case EventLinkFailed:
		return "link_failed"
	case EventLinkLost:
		return "link_lost"
	case EventNoCredentials:
		return "no_credentials"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Auth is the security of a scanned network. Values match the numeric
// auth codes the provisioning page expects.
type Auth int

const (
	AuthOpen    Auth = 0
	AuthWEP     Auth = 1
	AuthWPA     Auth = 2
	AuthWPA2    Auth = 3
	AuthWPAWPA2 Auth = 4
	AuthWPA3    Auth = 6
)

// Network is one scan result.
type Network struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
	Auth Auth   `json:"auth"`
}

// Credentials are the stored station credentials.
type Credentials struct {
	SSID     string
	Password string
}

// Link is the station-mode wireless interface.
type Link interface {
	// Connect associates with ssid and waits for an address.
	Connect(ctx context.Context, ssid, password string) error

	// Disconnect drops any association.
	Disconnect(ctx context.Context) error

	// RSSI returns the signal strength of the current association in dBm,
	// or ErrLinkDown when not associated.
	RSSI(ctx context.Context) (int, error)

	// Address returns the interface's IPv4 address.
	Address(ctx context.Context) (string, error)

	// Scan lists visible networks, strongest first.
	Scan(ctx context.Context) ([]Network, error)
}

// AccessPoint is the provisioning access point.
type AccessPoint interface {
	Start(ctx context.Context) error
	Stop() error
}

// Rebooter restarts the node. Reboot returns immediately; the restart
// happens after the implementation's grace period.
type Rebooter interface {
	Reboot(reason string)
}

// Status is a snapshot of the machine for the API, display and session info.
type Status struct {
	State       State  `json:"state"`
	SSID        string `json:"ssid,omitempty"`
	IP          string `json:"ip,omitempty"`
	RSSI        int    `json:"rssi"`
	RetryCount  int    `json:"retry_count"`
	Provisioned bool   `json:"provisioned"`
}
