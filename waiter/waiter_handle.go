//go:build !(linux && (amd64 || arm64))

package waiter

import (
	"context"

	"github.com/exitest/exitest/logger"
	"github.com/exitest/exitest/process"
	"github.com/exitest/exitest/termination"
)

// New returns the platform waiter: each await parks a goroutine in a
// blocking wait on the process's native handle, which resumes the caller
// exactly once. The handle is released by the wait itself.
func New(l logger.Logger) Waiter {
	return &handleWaiter{logger: l}
}

type handleWaiter struct {
	logger logger.Logger
}

func (w *handleWaiter) Await(ctx context.Context, p *process.Process) (termination.Status, error) {
	ch := make(chan Result, 1)

	go func() {
		pid := p.Pid()
		state, err := p.OSProcess().Wait()
		if err != nil {
			ch <- Result{Err: &WaitError{Pid: pid, Err: err}}
			return
		}
		st, err := classifyState(pid, state)
		if err != nil {
			ch <- Result{Err: err}
			return
		}
		w.logger.Debug("[Waiter] PID %d exited: %s", pid, st)
		ch <- Result{Status: st}
	}()

	select {
	case <-ctx.Done():
		// The wait is abandoned, not the child; the goroutine above still
		// reaps it when it exits.
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
