// Package connectivity manages the node's wireless station link.
//
// A Machine tracks four states:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//	      ^              |             |
//	      +--------------+-------------+
//	PROVISIONING (entered when no credentials are stored or after
//	              MaxRetry consecutive failures; left only by reboot)
//
// While PROVISIONING the node runs its own access point (hostapd and
// dnsmasq supervised through the process package) so a phone can reach the
// provisioning pages and submit new credentials.
//
// NMLink implements Link by shelling out to nmcli.
package connectivity
