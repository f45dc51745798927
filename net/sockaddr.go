package net

import (
	"fmt"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// Family is the address family of a SocketAddress.
type Family int

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	}
	return "unspec"
}

// SocketAddress is an immutable IPv4 or IPv6 socket address. The zero value has size 0 and must
// not be used for connect or bind.
type SocketAddress struct {
	family Family
	addr   [16]byte
	port   uint16
	zone   uint32
}

// NewSocketAddress copies a platform socket address. Families other than inet and inet6 yield
// the zero SocketAddress.
func NewSocketAddress(sa unix.Sockaddr) SocketAddress {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		s := SocketAddress{family: FamilyIPv4, port: uint16(v.Port)}
		copy(s.addr[:4], v.Addr[:])
		return s
	case *unix.SockaddrInet6:
		return SocketAddress{family: FamilyIPv6, addr: v.Addr, port: uint16(v.Port), zone: v.ZoneId}
	}
	return SocketAddress{}
}

// FromAddrPort builds a SocketAddress from a parsed address. IPv4-mapped IPv6 addresses are
// treated as IPv4.
func FromAddrPort(ap netip.AddrPort) SocketAddress {
	addr := ap.Addr().Unmap()
	switch {
	case addr.Is4():
		s := SocketAddress{family: FamilyIPv4, port: ap.Port()}
		a4 := addr.As4()
		copy(s.addr[:4], a4[:])
		return s
	case addr.Is6():
		s := SocketAddress{family: FamilyIPv6, addr: addr.As16(), port: ap.Port()}
		if z := addr.Zone(); z != "" {
			if idx, err := strconv.Atoi(z); err == nil {
				s.zone = uint32(idx)
			}
		}
		return s
	}
	return SocketAddress{}
}

func (s SocketAddress) Family() Family {
	return s.family
}

// Size is the length of the platform address structure for the family, 0 when unknown.
func (s SocketAddress) Size() int {
	switch s.family {
	case FamilyIPv4:
		return unix.SizeofSockaddrInet4
	case FamilyIPv6:
		return unix.SizeofSockaddrInet6
	}
	return 0
}

func (s SocketAddress) IsValid() bool {
	return s.Size() > 0
}

func (s SocketAddress) Port() int {
	return int(s.port)
}

// Bytes returns a copy of the raw address, 4 bytes for IPv4 and 16 for IPv6.
func (s SocketAddress) Bytes() []byte {
	switch s.family {
	case FamilyIPv4:
		out := make([]byte, 4)
		copy(out, s.addr[:4])
		return out
	case FamilyIPv6:
		out := make([]byte, 16)
		copy(out, s.addr[:])
		return out
	}
	return nil
}

// WithPort returns a copy of s using port.
func (s SocketAddress) WithPort(port int) SocketAddress {
	s.port = uint16(port)
	return s
}

// Sockaddr returns the platform form of s, or nil for an invalid address.
func (s SocketAddress) Sockaddr() unix.Sockaddr {
	switch s.family {
	case FamilyIPv4:
		sa := &unix.SockaddrInet4{Port: int(s.port)}
		copy(sa.Addr[:], s.addr[:4])
		return sa
	case FamilyIPv6:
		return &unix.SockaddrInet6{Port: int(s.port), ZoneId: s.zone, Addr: s.addr}
	}
	return nil
}

func (s SocketAddress) Addr() netip.Addr {
	switch s.family {
	case FamilyIPv4:
		return netip.AddrFrom4([4]byte(s.addr[:4]))
	case FamilyIPv6:
		addr := netip.AddrFrom16(s.addr)
		if s.zone != 0 {
			addr = addr.WithZone(strconv.Itoa(int(s.zone)))
		}
		return addr
	}
	return netip.Addr{}
}

func (s SocketAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(s.Addr(), s.port)
}

// Network returns the family specific network name for base, e.g. "tcp4" for "tcp".
func (s SocketAddress) Network(base string) string {
	switch s.family {
	case FamilyIPv4:
		return base + "4"
	case FamilyIPv6:
		return base + "6"
	}
	return base
}

func (s SocketAddress) String() string {
	if !s.IsValid() {
		return "invalid"
	}
	if s.port == 0 {
		return s.Addr().String()
	}
	return s.AddrPort().String()
}

func (s SocketAddress) GoString() string {
	return fmt.Sprintf("SocketAddress{%s %s}", s.family, s)
}
