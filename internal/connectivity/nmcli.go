package connectivity

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // Fixed binary, arguments are not shell-interpreted
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// NMLink drives a wireless interface through NetworkManager's nmcli.
type NMLink struct {
	Interface string
	run       Runner
}

// NewNMLink returns a Link for iface. A nil runner selects ExecRunner.
func NewNMLink(iface string, run Runner) *NMLink {
	if run == nil {
		run = ExecRunner
	}
	return &NMLink{Interface: iface, run: run}
}

// Connect associates with ssid. nmcli blocks until an address is acquired
// or its wait time (derived from ctx) expires.
func (l *NMLink) Connect(ctx context.Context, ssid, password string) error {
	args := []string{"--wait", strconv.Itoa(waitSeconds(ctx)), "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", l.Interface)

	if _, err := l.run(ctx, "nmcli", args...); err != nil {
		return fmt.Errorf("connecting to %q: %w", ssid, err)
	}
	return nil
}

// Disconnect drops the interface's association.
func (l *NMLink) Disconnect(ctx context.Context) error {
	if _, err := l.run(ctx, "nmcli", "device", "disconnect", l.Interface); err != nil {
		return fmt.Errorf("disconnecting %s: %w", l.Interface, err)
	}
	return nil
}

// RSSI returns the approximate dBm of the in-use network.
func (l *NMLink) RSSI(ctx context.Context) (int, error) {
	out, err := l.run(ctx, "nmcli", "-t", "-f", "IN-USE,SIGNAL", "device", "wifi", "list",
		"ifname", l.Interface, "--rescan", "no")
	if err != nil {
		return 0, fmt.Errorf("reading signal: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(line)
		if len(fields) < 2 || fields[0] != "*" {
			continue
		}
		signal, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, fmt.Errorf("parsing signal %q: %w", fields[1], err)
		}
		return signalToDBm(signal), nil
	}
	return 0, ErrLinkDown
}

// Address returns the first IPv4 address of the interface without prefix length.
func (l *NMLink) Address(ctx context.Context) (string, error) {
	out, err := l.run(ctx, "nmcli", "-g", "IP4.ADDRESS", "device", "show", l.Interface)
	if err != nil {
		return "", fmt.Errorf("reading address: %w", err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "|")
	addr, _, _ := strings.Cut(strings.TrimSpace(first), "/")
	if addr == "" {
		return "", fmt.Errorf("no IPv4 address on %s", l.Interface)
	}
	return addr, nil
}

// Scan rescans and returns one entry per SSID, strongest first.
// Hidden networks are omitted.
func (l *NMLink) Scan(ctx context.Context) ([]Network, error) {
	out, err := l.run(ctx, "nmcli", "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list",
		"ifname", l.Interface, "--rescan", "yes")
	if err != nil {
		return nil, fmt.Errorf("scanning: %w", err)
	}
	return parseScan(out), nil
}

func parseScan(out []byte) []Network {
	best := make(map[string]Network)
	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(line)
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		signal, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		n := Network{SSID: fields[0], RSSI: signalToDBm(signal), Auth: parseSecurity(fields[2])}
		if prev, ok := best[n.SSID]; !ok || n.RSSI > prev.RSSI {
			best[n.SSID] = n
		}
	}

	networks := make([]Network, 0, len(best))
	for _, n := range best {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool {
		if networks[i].RSSI != networks[j].RSSI {
			return networks[i].RSSI > networks[j].RSSI
		}
		return networks[i].SSID < networks[j].SSID
	})
	return networks
}

// splitTerse splits an nmcli terse line on unescaped colons.
func splitTerse(line string) []string {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return nil
	}
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

// parseSecurity maps nmcli's SECURITY column to an Auth code.
func parseSecurity(sec string) Auth {
	hasWPA1 := strings.Contains(sec, "WPA1")
	hasWPA2 := strings.Contains(sec, "WPA2")
	switch {
	case strings.Contains(sec, "WPA3"):
		return AuthWPA3
	case hasWPA1 && hasWPA2:
		return AuthWPAWPA2
	case hasWPA2:
		return AuthWPA2
	case hasWPA1:
		return AuthWPA
	case strings.Contains(sec, "WEP"):
		return AuthWEP
	default:
		return AuthOpen
	}
}

// signalToDBm converts nmcli's 0-100 quality to approximate dBm.
func signalToDBm(signal int) int {
	return signal/2 - 100
}

// waitSeconds derives nmcli's --wait from the context deadline.
func waitSeconds(ctx context.Context) int {
	deadline, ok := ctx.Deadline()
	if !ok {
		return int(DefaultConnectTimeout / time.Second)
	}
	secs := int(time.Until(deadline) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
