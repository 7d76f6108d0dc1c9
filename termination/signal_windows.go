//go:build windows

package termination

import (
	"strconv"
	"syscall"
)

// SignalString returns a printable form of a signal number. Windows has no
// signal-kill semantics, so the waiter never produces the signal variant
// there; this exists so Status.String is portable.
func SignalString(s syscall.Signal) string {
	return strconv.Itoa(int(s))
}
