// Package process supervises the daemons the node launches itself.
//
// In provisioning the node runs its own access point: hostapd for the
// radio and a DHCP/DNS server for portal clients. Each daemon runs under
// a Manager that restarts it with exponential backoff; a Group starts them
// in order and stops them in reverse.
//
// Example usage:
//
//	ap := process.NewGroup(
//	    process.NewManager(process.DefaultConfig("hostapd", "/usr/sbin/hostapd", []string{"/etc/hostapd/node.conf"})),
//	    process.NewManager(process.DefaultConfig("dnsmasq", "/usr/sbin/dnsmasq", []string{"--no-daemon"})),
//	)
//	if err := ap.Start(ctx); err != nil {
//	    return err
//	}
//	defer ap.Stop()
package process
