package net

import (
	"net"
	"net/netip"

	"github.com/agentuity/go-cellular/status"
)

// Interface is a snapshot of a network interface taken when it was looked up.
type Interface struct {
	Name  string
	Index int
	Flags net.Flags
	Addrs []netip.Prefix
}

func (i *Interface) Up() bool {
	return i.Flags&net.FlagUp != 0
}

// HasFamily reports whether the interface carries at least one address of family f.
func (i *Interface) HasFamily(f Family) bool {
	for _, p := range i.Addrs {
		addr := p.Addr().Unmap()
		if (f == FamilyIPv4 && addr.Is4()) || (f == FamilyIPv6 && addr.Is6()) {
			return true
		}
	}
	return false
}

// InterfaceLookup finds an interface by name.
type InterfaceLookup func(name string) (*Interface, error)

// LookupInterface resolves name against the live system interfaces. Failures are classified as
// CannotObtainNetworkInterfaces.
func LookupInterface(name string) (*Interface, error) {
	if name == "" {
		return nil, status.New(status.CannotObtainNetworkInterfaces, "no interface name given")
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, status.Wrapf(status.CannotObtainNetworkInterfaces, err, "interface %q", name)
	}
	iface := &Interface{Name: ifi.Name, Index: ifi.Index, Flags: ifi.Flags}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, status.Wrapf(status.CannotObtainNetworkInterfaces, err, "addresses of interface %q", name)
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipn.IP)
		if !ok {
			continue
		}
		ones, _ := ipn.Mask.Size()
		iface.Addrs = append(iface.Addrs, netip.PrefixFrom(addr.Unmap(), ones))
	}
	return iface, nil
}

// LoopbackInterface returns the first loopback interface that is up.
func LoopbackInterface() (*Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, status.Wrap(status.CannotObtainNetworkInterfaces, err, "list interfaces")
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 && ifi.Flags&net.FlagUp != 0 {
			return LookupInterface(ifi.Name)
		}
	}
	return nil, status.New(status.CannotObtainNetworkInterfaces, "no loopback interface")
}
