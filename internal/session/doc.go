// Package session manages the node's broker session.
//
// A Manager is started when the station link comes up and stopped when it
// drops. While running it publishes four channels under
// {base}/{device_id}/:
//
//	data      QoS 0, not retained   every publish interval while mode is ON
//	state     QoS 1, retained       on change and every 60 s
//	info      QoS 1, retained       on connect and when the link identity changes
//	response  QoS 1, retained       once per inbound command
//
// Inbound commands arrive on {base}/{device_id}/command as
//
//	{"cmd_id": "42", "command": "set_mode", "params": {"mode": 1}}
//
// Every command, including one that cannot be parsed, is answered with
// exactly one response. Work that blocks, such as reboot and factory reset,
// is handed to the input worker rather than run in the receive path.
package session
