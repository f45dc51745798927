package net

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/agentuity/go-cellular/logger"
	"github.com/agentuity/go-cellular/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback returns the loopback interface, skipping the test when sockets cannot be bound to it.
func loopback(t *testing.T) *Interface {
	t.Helper()
	iface, err := LoopbackInterface()
	if err != nil {
		t.Skipf("no loopback interface: %v", err)
	}
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	raw, err := conn.(*net.UDPConn).SyscallConn()
	require.NoError(t, err)
	var bindErr error
	raw.Control(func(fd uintptr) {
		bindErr = BindToInterface(fd, "udp4", iface.Index)
	})
	if bindErr != nil {
		t.Skipf("cannot bind to %s: %v", iface.Name, bindErr)
	}
	return iface
}

func listen(t *testing.T) (*net.TCPListener, SocketAddress) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	addr := ln.Addr().(*net.TCPAddr).AddrPort()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.(*net.TCPListener), FromAddrPort(addr)
}

func refusedAddress(t *testing.T) SocketAddress {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr).AddrPort()
	ln.Close()
	return FromAddrPort(addr)
}

func TestConnectLoopback(t *testing.T) {
	iface := loopback(t)
	_, addr := listen(t)

	c := NewConnector(logger.NewTestLogger())
	sock, err := c.Connect(context.Background(), &ResolvedEndpoint{
		Hostname:  "localhost",
		Addresses: []SocketAddress{addr},
		Interface: iface,
	})
	require.NoError(t, err)
	assert.Equal(t, addr, sock.RemoteAddress())
	assert.Equal(t, iface.Name, sock.Interface().Name)

	conn, err := sock.Detach()
	require.NoError(t, err)
	defer conn.Close()

	_, err = sock.Detach()
	assert.Error(t, err, "ownership transfers exactly once")
	assert.NoError(t, sock.Close(), "close after detach is a no-op")
}

func TestConnectTriesCandidatesInOrder(t *testing.T) {
	iface := loopback(t)
	_, good := listen(t)
	bad := refusedAddress(t)

	log := logger.NewTestLogger()
	c := NewConnector(log)
	sock, err := c.Connect(context.Background(), &ResolvedEndpoint{
		Hostname:  "localhost",
		Addresses: []SocketAddress{bad, good},
		Interface: iface,
	})
	require.NoError(t, err)
	defer sock.Close()
	assert.Equal(t, good, sock.RemoteAddress())
	assert.True(t, log.Contains("connect to "+bad.String()+" failed"))
}

func TestConnectAllRefused(t *testing.T) {
	iface := loopback(t)
	c := NewConnector(logger.NewTestLogger())
	_, err := c.Connect(context.Background(), &ResolvedEndpoint{
		Hostname:  "localhost",
		Addresses: []SocketAddress{refusedAddress(t), refusedAddress(t)},
		Interface: iface,
	})
	assert.Equal(t, status.CannotConnectSocketToRemoteAddress, status.Of(err))
	assert.True(t, errors.Is(err, syscall.ECONNREFUSED))
}

func TestConnectNoCandidates(t *testing.T) {
	iface := &Interface{Name: "rmnet0", Index: 9}
	c := NewConnector(logger.NewTestLogger(), WithInterfaceLookup(func(string) (*Interface, error) { return iface, nil }))
	_, err := c.Connect(context.Background(), &ResolvedEndpoint{Hostname: "example.com", Interface: iface})
	assert.Equal(t, status.CannotConnectSocketToRemoteAddress, status.Of(err))
}

func TestConnectInterfaceGone(t *testing.T) {
	c := NewConnector(logger.NewTestLogger())
	_, err := c.Connect(context.Background(), &ResolvedEndpoint{
		Hostname:  "example.com",
		Addresses: []SocketAddress{FromAddrPort(netip.MustParseAddrPort("192.0.2.1:443"))},
		Interface: &Interface{Name: "does-not-exist0", Index: 999},
	})
	assert.Equal(t, status.CannotObtainNetworkInterfaces, status.Of(err))

	_, err = c.Connect(context.Background(), nil)
	assert.Equal(t, status.CannotObtainNetworkInterfaces, status.Of(err))
}

func TestConnectBindFailure(t *testing.T) {
	iface := loopback(t)
	_, addr := listen(t)
	c := NewConnector(logger.NewTestLogger(), WithBindFunc(func(uintptr, string, int) error {
		return syscall.EPERM
	}))
	_, err := c.Connect(context.Background(), &ResolvedEndpoint{
		Hostname:  "localhost",
		Addresses: []SocketAddress{addr},
		Interface: iface,
	})
	assert.Equal(t, status.CannotObtainNetworkInterfaces, status.Of(err))
	var bindErr *BindError
	assert.True(t, errors.As(err, &bindErr))
	assert.Equal(t, iface.Index, bindErr.Index)
}

func TestConnectRouteCheck(t *testing.T) {
	iface := &Interface{Name: "rmnet0", Index: 9, Addrs: []netip.Prefix{netip.MustParsePrefix("10.0.0.2/30")}}
	c := NewConnector(logger.NewTestLogger(), WithInterfaceLookup(func(string) (*Interface, error) { return iface, nil }))
	_, err := c.Connect(context.Background(), &ResolvedEndpoint{
		Hostname:  "example.com",
		Addresses: []SocketAddress{FromAddrPort(netip.MustParseAddrPort("[2001:db8::1]:443"))},
		Interface: iface,
	})
	assert.Equal(t, status.CannotFindRoutesForHttpRequest, status.Of(err))
}

func TestConnectHonoursContext(t *testing.T) {
	iface := loopback(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConnector(logger.NewTestLogger(), WithConnectTimeout(time.Second))
	_, err := c.Connect(ctx, &ResolvedEndpoint{
		Hostname:  "localhost",
		Addresses: []SocketAddress{refusedAddress(t), refusedAddress(t)},
		Interface: iface,
	})
	assert.Equal(t, status.CannotConnectSocketToRemoteAddress, status.Of(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClassifyDialError(t *testing.T) {
	socketErr := &net.OpError{Op: "dial", Net: "tcp4", Err: os.NewSyscallError("socket", syscall.EMFILE)}
	assert.Equal(t, status.UnableToInstantiateSockets, classifyDialError(socketErr))

	bindErr := &net.OpError{Op: "dial", Net: "tcp4", Err: &BindError{Interface: "rmnet0", Index: 3, Err: syscall.ENODEV}}
	assert.Equal(t, status.CannotObtainNetworkInterfaces, classifyDialError(bindErr))

	refused := &net.OpError{Op: "dial", Net: "tcp4", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	assert.Equal(t, status.CannotConnectSocketToRemoteAddress, classifyDialError(refused))
}

func TestConnectedSocketClose(t *testing.T) {
	_, addr := listen(t)
	conn, err := net.Dial("tcp4", addr.String())
	require.NoError(t, err)
	sock := NewConnectedSocket(conn.(*net.TCPConn), &Interface{Name: "lo"})
	assert.Equal(t, addr, sock.RemoteAddress())
	assert.NoError(t, sock.Close())
	assert.NoError(t, sock.Close())
	_, err = sock.Detach()
	assert.Error(t, err)
}
