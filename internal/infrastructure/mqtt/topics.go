package mqtt

// Channel suffixes under the device prefix.
const (
	channelData     = "data"
	channelState    = "state"
	channelInfo     = "info"
	channelResponse = "response"
	channelCommand  = "command"
	channelStatus   = "status"
)

// Topics builds the node's topic names: {base}/{device_id}/{channel}.
//
//	topics := mqtt.Topics{Base: "base", DeviceID: "node-001"}
//	topics.State() // "base/node-001/state"
type Topics struct {
	Base     string
	DeviceID string
}

// Device returns the topic prefix shared by every channel of this node.
func (t Topics) Device() string {
	return t.Base + "/" + t.DeviceID
}

// Data is the sensor data channel (QoS 0, not retained).
func (t Topics) Data() string { return t.channel(channelData) }

// State is the device state channel (QoS 1, retained).
func (t Topics) State() string { return t.channel(channelState) }

// Info is the device identity channel (QoS 1, retained).
func (t Topics) Info() string { return t.channel(channelInfo) }

// Response carries command responses (QoS 1, retained).
func (t Topics) Response() string { return t.channel(channelResponse) }

// Command is the only inbound channel.
func (t Topics) Command() string { return t.channel(channelCommand) }

// Status carries the retained online/offline marker and the Last Will.
func (t Topics) Status() string { return t.channel(channelStatus) }

// All matches every channel of this node.
func (t Topics) All() string { return t.channel("#") }

func (t Topics) channel(name string) string {
	return t.Device() + "/" + name
}
