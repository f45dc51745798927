package sna

import (
	"context"
	"slices"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// Availability is what a Monitor knows about an interface.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	Available
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Monitor reports whether the cellular interface can carry traffic.
type Monitor interface {
	Availability(ctx context.Context, iface string) (Availability, error)
}

// InterfaceMonitor reads interface state from the operating system.
type InterfaceMonitor struct {
	interfaces func(context.Context) (gnet.InterfaceStatList, error)
}

var _ Monitor = (*InterfaceMonitor)(nil)

func NewInterfaceMonitor() *InterfaceMonitor {
	return &InterfaceMonitor{interfaces: gnet.InterfacesWithContext}
}

// Availability is Available when the interface is up and holds at least one address. An
// interface that is missing is Unavailable, a failure to list interfaces is Unknown.
func (m *InterfaceMonitor) Availability(ctx context.Context, iface string) (Availability, error) {
	list, err := m.interfaces(ctx)
	if err != nil {
		return AvailabilityUnknown, err
	}
	for _, i := range list {
		if i.Name != iface {
			continue
		}
		if slices.Contains(i.Flags, "up") && len(i.Addrs) > 0 {
			return Available, nil
		}
		return Unavailable, nil
	}
	return Unavailable, nil
}
