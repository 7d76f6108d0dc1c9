package waiter

import (
	"sync"

	"github.com/exitest/exitest/logger"
	"github.com/exitest/exitest/termination"
)

// Result is what a registered continuation receives, exactly once.
type Result struct {
	Status termination.Status
	Err    error
}

// Syscalls is the slice of the operating system the Table needs. It is
// injected so the table's register/resume race can be tested with fake
// already-exited children instead of real processes.
type Syscalls interface {
	// PeekExited blocks until some child of this process has exited and
	// returns its pid without reaping it, so the pid cannot be recycled
	// before the interested caller claims it. Returns ErrNoChildren when
	// there is nothing waitable.
	PeekExited() (int, error)

	// TryReap reaps pid if it has already exited, reporting whether it did.
	TryReap(pid int) (termination.Status, bool, error)

	// Reap blocks until pid exits and reaps it.
	Reap(pid int) (termination.Status, error)
}

// Table multiplexes many independent awaits over one monitor goroutine. It
// is the only shared mutable state in the engine: a pid→continuation map
// under a single non-reentrant mutex.
//
// The monitor's "a child exited" discovery and a caller's "I want this pid"
// registration race deliberately: whichever side arrives second completes
// the pair. The monitor leaves an exited-but-unclaimed child unreaped for
// the registration to find, and a registration finding its child already
// exited reaps it without the monitor's help. Entries are removed before
// their continuation is resumed, so a recycled pid can never fire a stale
// continuation.
type Table struct {
	logger logger.Logger
	sys    Syscalls

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[int]chan<- Result
	seq     uint64
}

func NewTable(l logger.Logger, sys Syscalls) *Table {
	t := &Table{
		logger:  l,
		sys:     sys,
		pending: make(map[int]chan<- Result),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// RegisterOrResume registers interest in pid. ch must have capacity for one
// Result; it receives exactly one, either immediately (the child already
// exited) or when the monitor sees the exit.
//
// Every path counts as table activity and wakes the monitor: a resolved-at
// -registration claim removes the exit a parked monitor may be waiting out,
// so the monitor must re-peek or it would sleep through the next real exit.
func (t *Table) RegisterOrResume(pid int, ch chan<- Result) {
	t.mu.Lock()

	st, reaped, err := t.sys.TryReap(pid)
	if err != nil {
		t.bump()
		t.mu.Unlock()
		ch <- Result{Err: &WaitError{Pid: pid, Err: err}}
		return
	}
	if reaped {
		t.bump()
		t.mu.Unlock()
		t.logger.Debug("[Waiter] PID %d had already exited at registration: %s", pid, st)
		ch <- Result{Status: st}
		return
	}

	t.pending[pid] = ch
	t.bump()
	t.mu.Unlock()
}

// bump marks table activity. Callers hold mu.
func (t *Table) bump() {
	t.seq++
	t.cond.Broadcast()
}

// Pending returns the number of registered continuations.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Run is the monitor loop. It never returns.
func (t *Table) Run() {
	for {
		t.PollOnce()
	}
}

// PollOnce performs one monitor iteration: sleep until something is
// registered, peek for an exited child, and resume the matching
// continuation if there is one.
func (t *Table) PollOnce() {
	t.mu.Lock()
	// Nothing to wait for; suspend rather than spin in the wait call.
	for len(t.pending) == 0 {
		t.cond.Wait()
	}
	seq := t.seq
	t.mu.Unlock()

	pid, err := t.sys.PeekExited()
	if err != nil {
		// ErrNoChildren with registrations outstanding means those pids are
		// not children of this process; no wait can ever succeed for them.
		// Other errors are equally unrecoverable for the current batch.
		t.failPending(err)
		return
	}

	t.mu.Lock()
	if ch, ok := t.pending[pid]; ok {
		delete(t.pending, pid)
		st, rerr := t.sys.Reap(pid)
		t.mu.Unlock()

		if rerr != nil {
			ch <- Result{Err: &WaitError{Pid: pid, Err: rerr}}
			return
		}
		t.logger.Debug("[Waiter] PID %d exited: %s", pid, st)
		ch <- Result{Status: st}
		return
	}

	// A child exited before anyone registered interest. Leave it reapable
	// for the registration's TryReap to claim, and wait for the table to
	// change rather than rediscovering the same pid in a hot loop.
	if t.seq == seq {
		t.cond.Wait()
	}
	t.mu.Unlock()
}

func (t *Table) failPending(err error) {
	t.mu.Lock()
	resumed := make(map[int]chan<- Result, len(t.pending))
	for pid, ch := range t.pending {
		delete(t.pending, pid)
		resumed[pid] = ch
	}
	t.mu.Unlock()

	for pid, ch := range resumed {
		ch <- Result{Err: &WaitError{Pid: pid, Err: err}}
	}
}
