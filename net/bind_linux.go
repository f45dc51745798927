package net

import "golang.org/x/sys/unix"

// BindToInterface uses SO_BINDTOIFINDEX so that traffic leaves through the interface regardless
// of the routing table.
func BindToInterface(fd uintptr, network string, ifIndex int) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BINDTOIFINDEX, ifIndex)
}
