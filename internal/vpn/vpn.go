// Package vpn probes the state of a corporate VPN connection on the
// host. The run-config assembler and the monitor only see the Prober
// interface; platform detail stays here.
package vpn

import (
	"os"
	"path/filepath"
	"strings"
)

// Prober reports the state of a named VPN connection.
type Prober interface {
	// IsActive reports whether the connection is established.
	IsActive(connection string) bool
	// InterfaceName resolves the network interface carrying the
	// connection's traffic, or "" when it cannot be determined.
	InterfaceName(connection string) string
}

// Nop is a prober that sees no VPN at all.
type Nop struct{}

func (Nop) IsActive(string) bool        { return false }
func (Nop) InterfaceName(string) string { return "" }

// Funcs adapts plain functions to the Prober interface, mainly for
// tests.
type Funcs struct {
	Active    func(connection string) bool
	Interface func(connection string) string
}

func (f Funcs) IsActive(connection string) bool {
	if f.Active == nil {
		return false
	}
	return f.Active(connection)
}

func (f Funcs) InterfaceName(connection string) string {
	if f.Interface == nil {
		return ""
	}
	return f.Interface(connection)
}

// HostProber treats the connection name as a network interface and
// checks its state through /sys/class/net. Good enough for tun and
// wireguard style VPNs where the interface only exists while connected.
type HostProber struct{}

func (HostProber) IsActive(connection string) bool {
	if connection == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join("/sys/class/net", connection, "operstate"))
	if err != nil {
		return false
	}
	state := strings.TrimSpace(string(data))
	// Point to point interfaces commonly report "unknown" while up.
	return state == "up" || state == "unknown"
}

func (p HostProber) InterfaceName(connection string) string {
	if !p.IsActive(connection) {
		return ""
	}
	return connection
}
