package net

import (
	"fmt"
	"syscall"
)

// BindFunc pins the socket fd to the interface with the given index. network is the family
// specific name passed to the dialer ("tcp4", "udp6", ...).
type BindFunc func(fd uintptr, network string, ifIndex int) error

// BindError reports that a socket could not be pinned to an interface.
type BindError struct {
	Interface string
	Index     int
	Err       error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind to interface %s (index %d): %v", e.Interface, e.Index, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Control returns a dialer Control func that binds every socket it sees to iface before
// connect.
func Control(bind BindFunc, iface *Interface) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var bindErr error
		if err := c.Control(func(fd uintptr) {
			bindErr = bind(fd, network, iface.Index)
		}); err != nil {
			return &BindError{Interface: iface.Name, Index: iface.Index, Err: err}
		}
		if bindErr != nil {
			return &BindError{Interface: iface.Name, Index: iface.Index, Err: bindErr}
		}
		return nil
	}
}
