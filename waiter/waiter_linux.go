//go:build linux && (amd64 || arm64)

package waiter

import (
	"context"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/exitest/exitest/logger"
	"github.com/exitest/exitest/process"
	"github.com/exitest/exitest/termination"
)

// New returns the platform waiter: one long-lived monitor goroutine
// multiplexing every await through a shared Table.
func New(l logger.Logger) Waiter {
	return &monitorWaiter{
		logger: l,
		table:  NewTable(l, sysWaits{}),
	}
}

type monitorWaiter struct {
	logger logger.Logger
	table  *Table
	once   sync.Once
}

func (w *monitorWaiter) Await(ctx context.Context, p *process.Process) (termination.Status, error) {
	w.once.Do(func() {
		go w.table.Run()
	})

	ch := make(chan Result, 1)
	w.table.RegisterOrResume(p.Pid(), ch)

	select {
	case <-ctx.Done():
		// The wait is abandoned, not the child; the monitor still reaps it.
		return termination.Status{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			p.Release()
			return termination.Status{}, r.Err
		}
		p.Finish(r.Status)
		return r.Status, nil
	}
}

// sysWaits is the real Syscalls implementation.
type sysWaits struct{}

// siginfo mirrors the kernel's 128-byte siginfo_t on 64-bit targets: three
// ints, four bytes of padding, then the union whose first SIGCHLD members
// are pid, uid and status.
type siginfo struct {
	Signo  int32
	Errno  int32
	Code   int32
	_      int32
	Pid    int32
	Uid    int32
	Status int32
	_      [100]byte
}

func (sysWaits) PeekExited() (int, error) {
	var si siginfo
	for {
		_, _, errno := unix.Syscall6(
			unix.SYS_WAITID,
			uintptr(unix.P_ALL),
			0,
			uintptr(unsafe.Pointer(&si)),
			uintptr(unix.WEXITED|unix.WNOWAIT),
			0, 0,
		)
		switch errno {
		case 0:
			return int(si.Pid), nil
		case unix.EINTR:
			// Interrupted waits are retried, never surfaced.
			continue
		case unix.ECHILD:
			return 0, ErrNoChildren
		default:
			return 0, errno
		}
	}
}

func (sysWaits) TryReap(pid int) (termination.Status, bool, error) {
	return reap(pid, unix.WNOHANG)
}

func (sysWaits) Reap(pid int) (termination.Status, error) {
	st, reaped, err := reap(pid, 0)
	if err == nil && !reaped {
		err = ErrNoChildren
	}
	return st, err
}

func reap(pid int, flags int) (termination.Status, bool, error) {
	var ws unix.WaitStatus
	for {
		got, err := unix.Wait4(pid, &ws, flags, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return termination.Status{}, false, err
		}
		if got == 0 {
			// WNOHANG and the child is still running.
			return termination.Status{}, false, nil
		}
		st, cerr := classifyWaitStatus(ws)
		return st, cerr == nil, cerr
	}
}

func classifyWaitStatus(ws unix.WaitStatus) (termination.Status, error) {
	switch {
	case ws.Signaled():
		return termination.Signal(ws.Signal()), nil
	case ws.Exited():
		return termination.Exit(ws.ExitStatus()), nil
	default:
		return termination.Status{}, unix.EINVAL
	}
}
