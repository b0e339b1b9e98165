// Package link reports whether the host's network link is usable.
//
// Association and reconnection are handled by the operating system; this
// package only observes the result, the same way the firmware checked its
// Wi-Fi status before each poll.
package link

import (
	"fmt"
	"net"
	"sync/atomic"
)

// Link reports connectivity. Implementations must be safe for concurrent use.
type Link interface {
	Connected() bool
}

// Static is a Link whose state is set by the caller.
type Static struct {
	up atomic.Bool
}

// NewStatic returns a Static link in the given state.
func NewStatic(up bool) *Static {
	s := &Static{}
	s.up.Store(up)
	return s
}

// Connected implements Link.
func (s *Static) Connected() bool { return s.up.Load() }

// Set changes the reported state.
func (s *Static) Set(up bool) { s.up.Store(up) }

// Interface reports a network interface as connected when it is up, running
// and holds at least one non-loopback unicast address. With an empty name any
// interface satisfying that counts.
type Interface struct {
	name string

	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// NewInterface returns a Link over the named interface ("" for any).
func NewInterface(name string) *Interface {
	return &Interface{
		name:       name,
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// Name returns the watched interface name, or "" for any.
func (l *Interface) Name() string { return l.name }

// Connected implements Link.
func (l *Interface) Connected() bool {
	ifaces, err := l.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if l.name != "" && iface.Name != l.name {
			continue
		}
		if l.usable(iface) {
			return true
		}
	}
	return false
}

// Check returns nil if the named interface exists, so misconfiguration is
// reported at startup instead of as a permanently down link.
func (l *Interface) Check() error {
	if l.name == "" {
		return nil
	}
	ifaces, err := l.interfaces()
	if err != nil {
		return fmt.Errorf("failed to list network interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Name == l.name {
			return nil
		}
	}
	return fmt.Errorf("network interface %q not found", l.name)
}

func (l *Interface) usable(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagRunning == 0 {
		return false
	}
	if iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	addrs, err := l.addrs(iface)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		}
		if ip != nil && !ip.IsLoopback() && !ip.IsUnspecified() {
			return true
		}
	}
	return false
}
