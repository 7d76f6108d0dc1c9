// Package waiter awaits the termination of processes spawned by the
// launcher and classifies how they ended.
//
// The Waiter interface has one implementation per platform, chosen at build
// time. On Linux a single monitor goroutine multiplexes every outstanding
// wait through a shared pid table (see Table); elsewhere each await blocks
// on the process's native handle. Both satisfy the same contract: the
// continuation for a given process resumes at most once, with the status of
// that exact process.
//
// The waiter never kills anything. Once spawned, a child is always waited
// for; cancelling the context abandons the wait but the background wait
// machinery still reaps the child.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/exitest/exitest/process"
	"github.com/exitest/exitest/termination"
)

// Waiter awaits a spawned process's termination.
type Waiter interface {
	// Await blocks until the process terminates and returns its classified
	// status. On success the process is finished and its handle released.
	// Cancelling ctx abandons the wait; it does not stop the child.
	Await(ctx context.Context, p *process.Process) (termination.Status, error)
}

// WaitError means the OS wait machinery itself failed, as opposed to the
// child terminating with an unexpected status. It is surfaced as a
// test-infrastructure issue.
type WaitError struct {
	Pid int
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("waiting for PID %d: %v", e.Pid, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// ErrNoChildren reports that the process has no waitable children.
var ErrNoChildren = errors.New("no waitable child processes")

// classifyState decodes an os.ProcessState using the platform's own
// predicates. A state the platform cannot classify is an error, never a
// guessed status.
func classifyState(pid int, state *os.ProcessState) (termination.Status, error) {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return termination.Status{}, &WaitError{Pid: pid, Err: fmt.Errorf("unexpected wait result %T", state.Sys())}
	}
	switch {
	case ws.Signaled():
		return termination.Signal(ws.Signal()), nil
	case ws.Exited():
		return termination.Exit(ws.ExitStatus()), nil
	default:
		return termination.Status{}, &WaitError{Pid: pid, Err: fmt.Errorf("wait status %v is neither an exit nor a signal", ws)}
	}
}
