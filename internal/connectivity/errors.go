package connectivity

import "errors"

var (
	// ErrLinkDown is returned by Link.RSSI when the interface is not
	// associated. The machine treats it as a link-lost event.
	ErrLinkDown = errors.New("wireless link down")

	// ErrNotProvisioning is returned when credentials are submitted outside
	// the PROVISIONING state.
	ErrNotProvisioning = errors.New("not in provisioning mode")

	// ErrInvalidCredentials is returned for an SSID or passphrase that
	// cannot be valid for WPA2.
	ErrInvalidCredentials = errors.New("invalid wifi credentials")
)
