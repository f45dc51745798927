package net

import (
	"strings"

	"golang.org/x/sys/unix"
)

// BindToInterface uses IP_BOUND_IF or IPV6_BOUND_IF depending on the socket family.
func BindToInterface(fd uintptr, network string, ifIndex int) error {
	if strings.HasSuffix(network, "6") {
		return unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_BOUND_IF, ifIndex)
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_BOUND_IF, ifIndex)
}
