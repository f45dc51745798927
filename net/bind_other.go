//go:build !linux && !darwin

package net

import (
	"fmt"
	"runtime"
)

func BindToInterface(fd uintptr, network string, ifIndex int) error {
	return fmt.Errorf("binding sockets to an interface is not supported on %s", runtime.GOOS)
}
