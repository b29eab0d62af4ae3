package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// HostNetwork is the [Network] for a general-purpose host: the link is
// considered associated once a non-loopback interface is up with an
// address and the broker's host name resolves.
type HostNetwork struct {
	host string

	// Overridable in tests.
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
	lookup     func(ctx context.Context, host string) ([]string, error)
}

// NewHostNetwork creates a HostNetwork that resolves brokerHost.
func NewHostNetwork(brokerHost string) *HostNetwork {
	return &HostNetwork{
		host:       brokerHost,
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
		lookup:     net.DefaultResolver.LookupHost,
	}
}

var errNoInterface = errors.New("no non-loopback interface is up")

// Associate implements [Network].
func (n *HostNetwork) Associate(ctx context.Context) error {
	up, err := n.interfaceUp()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}
	if !up {
		return errNoInterface
	}

	addrs, err := n.lookup(ctx, n.host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", n.host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", n.host)
	}
	return nil
}

func (n *HostNetwork) interfaceUp() (bool, error) {
	ifaces, err := n.interfaces()
	if err != nil {
		return false, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := n.addrs(iface)
		if err != nil {
			continue
		}
		if len(addrs) > 0 {
			return true, nil
		}
	}
	return false, nil
}
