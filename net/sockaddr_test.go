package net

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestNewSocketAddressIPv4(t *testing.T) {
	sa := NewSocketAddress(&unix.SockaddrInet4{Port: 443, Addr: [4]byte{10, 0, 0, 1}})
	assert.True(t, sa.IsValid())
	assert.Equal(t, FamilyIPv4, sa.Family())
	assert.Equal(t, unix.SizeofSockaddrInet4, sa.Size())
	assert.Equal(t, []byte{10, 0, 0, 1}, sa.Bytes())
	assert.Equal(t, 443, sa.Port())
	assert.Equal(t, "10.0.0.1:443", sa.String())
	assert.Equal(t, "tcp4", sa.Network("tcp"))

	back, ok := sa.Sockaddr().(*unix.SockaddrInet4)
	assert.True(t, ok)
	assert.Equal(t, [4]byte{10, 0, 0, 1}, back.Addr)
	assert.Equal(t, 443, back.Port)
}

func TestNewSocketAddressIPv6(t *testing.T) {
	raw := netip.MustParseAddr("2001:db8::1").As16()
	sa := NewSocketAddress(&unix.SockaddrInet6{Port: 8443, Addr: raw})
	assert.True(t, sa.IsValid())
	assert.Equal(t, FamilyIPv6, sa.Family())
	assert.Equal(t, unix.SizeofSockaddrInet6, sa.Size())
	assert.Len(t, sa.Bytes(), 16)
	assert.Equal(t, "[2001:db8::1]:8443", sa.String())
	assert.Equal(t, "udp6", sa.Network("udp"))
}

func TestUnknownFamilyIsZeroSize(t *testing.T) {
	sa := NewSocketAddress(&unix.SockaddrUnix{Name: "/tmp/sock"})
	assert.False(t, sa.IsValid())
	assert.Equal(t, 0, sa.Size())
	assert.Nil(t, sa.Bytes())
	assert.Nil(t, sa.Sockaddr())
	assert.Equal(t, "invalid", sa.String())
	assert.Equal(t, FamilyUnspec, SocketAddress{}.Family())
}

func TestFromAddrPort(t *testing.T) {
	sa := FromAddrPort(netip.MustParseAddrPort("[::ffff:192.0.2.7]:53"))
	assert.Equal(t, FamilyIPv4, sa.Family())
	assert.Equal(t, "192.0.2.7:53", sa.String())

	sa = FromAddrPort(netip.MustParseAddrPort("[fe80::1%2]:80"))
	assert.Equal(t, FamilyIPv6, sa.Family())
	v6, ok := sa.Sockaddr().(*unix.SockaddrInet6)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), v6.ZoneId)

	assert.False(t, FromAddrPort(netip.AddrPort{}).IsValid())
}

func TestSocketAddressImmutable(t *testing.T) {
	sa := FromAddrPort(netip.MustParseAddrPort("192.0.2.1:80"))
	b := sa.Bytes()
	b[0] = 0
	assert.Equal(t, "192.0.2.1:80", sa.String())

	other := sa.WithPort(443)
	assert.Equal(t, 80, sa.Port())
	assert.Equal(t, 443, other.Port())
	assert.Equal(t, "192.0.2.1", sa.WithPort(0).String())
}
