//go:build !windows

package termination

import (
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// SignalString returns the conventional name for a signal number, e.g.
// "SIGTERM". Numbers without a name on this platform are formatted as-is.
func SignalString(s syscall.Signal) string {
	if name := unix.SignalName(unix.Signal(s)); name != "" {
		return name
	}
	return strconv.Itoa(int(s))
}
