package waiter_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/exitest/exitest/logger"
	"github.com/exitest/exitest/termination"
	"github.com/exitest/exitest/waiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSyscalls simulates the OS wait calls so the table's register/resume
// race can be exercised without spawning anything.
type fakeSyscalls struct {
	mu     sync.Mutex
	exited map[int]termination.Status
	wake   chan int // pids fed to PeekExited
}

func newFakeSyscalls() *fakeSyscalls {
	return &fakeSyscalls{
		exited: make(map[int]termination.Status),
		wake:   make(chan int, 16),
	}
}

// exit records pid as already-exited, visible to TryReap immediately.
func (f *fakeSyscalls) exit(pid int, st termination.Status) {
	f.mu.Lock()
	f.exited[pid] = st
	f.mu.Unlock()
}

func (f *fakeSyscalls) PeekExited() (int, error) {
	return <-f.wake, nil
}

func (f *fakeSyscalls) TryReap(pid int) (termination.Status, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.exited[pid]
	if !ok {
		return termination.Status{}, false, nil
	}
	delete(f.exited, pid)
	return st, true, nil
}

func (f *fakeSyscalls) Reap(pid int) (termination.Status, error) {
	st, ok, err := f.TryReap(pid)
	if err == nil && !ok {
		err = errors.New("reap called for a pid that has not exited")
	}
	return st, err
}

func receiveResult(t *testing.T, ch <-chan waiter.Result) waiter.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
		return waiter.Result{}
	}
}

func TestTableResumesAlreadyExitedRegistration(t *testing.T) {
	sys := newFakeSyscalls()
	table := waiter.NewTable(logger.Discard, sys)

	// The child exited before anyone registered interest; registration must
	// discover that on its own, without the monitor's help.
	sys.exit(100, termination.Exit(3))

	ch := make(chan waiter.Result, 1)
	table.RegisterOrResume(100, ch)

	r := receiveResult(t, ch)
	require.NoError(t, r.Err)
	assert.True(t, termination.Exit(3).Equal(r.Status))
	assert.Equal(t, 0, table.Pending())
}

func TestTableMonitorResumesRegistrationExactlyOnce(t *testing.T) {
	sys := newFakeSyscalls()
	table := waiter.NewTable(logger.Discard, sys)
	go table.Run()

	ch := make(chan waiter.Result, 1)
	table.RegisterOrResume(200, ch)

	// Now the child exits and the monitor's peek sees it.
	sys.exit(200, termination.Signal(9))
	sys.wake <- 200

	r := receiveResult(t, ch)
	require.NoError(t, r.Err)

	sig, ok := r.Status.Signal()
	require.True(t, ok)
	assert.Equal(t, 9, int(sig))
	assert.Equal(t, 0, table.Pending())
}

func TestTableNeverCrossesTwoProcesses(t *testing.T) {
	sys := newFakeSyscalls()
	table := waiter.NewTable(logger.Discard, sys)
	go table.Run()

	ch1 := make(chan waiter.Result, 1)
	ch2 := make(chan waiter.Result, 1)
	table.RegisterOrResume(301, ch1)
	table.RegisterOrResume(302, ch2)

	// Both terminate within the same scheduling tick.
	sys.exit(301, termination.Exit(1))
	sys.exit(302, termination.Exit(2))
	sys.wake <- 302
	sys.wake <- 301

	r1 := receiveResult(t, ch1)
	r2 := receiveResult(t, ch2)
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)

	assert.True(t, termination.Exit(1).Equal(r1.Status), "pid 301 got %s", r1.Status)
	assert.True(t, termination.Exit(2).Equal(r2.Status), "pid 302 got %s", r2.Status)
}

func TestTableToleratesExitBeforeRegistration(t *testing.T) {
	sys := newFakeSyscalls()
	table := waiter.NewTable(logger.Discard, sys)
	go table.Run()

	// Something must be pending or the monitor sleeps, so park one
	// registration first.
	chOther := make(chan waiter.Result, 1)
	table.RegisterOrResume(400, chOther)

	// The monitor peeks an exit nobody has registered for yet. It must
	// leave it claimable rather than dropping it.
	sys.exit(401, termination.Exit(7))
	sys.wake <- 401

	ch := make(chan waiter.Result, 1)
	table.RegisterOrResume(401, ch)

	r := receiveResult(t, ch)
	require.NoError(t, r.Err)
	assert.True(t, termination.Exit(7).Equal(r.Status))
}

func TestTableClaimWakesParkedMonitor(t *testing.T) {
	sys := newFakeSyscalls()
	table := waiter.NewTable(logger.Discard, sys)
	go table.Run()

	// One registration is outstanding and its child keeps running.
	chSlow := make(chan waiter.Result, 1)
	table.RegisterOrResume(600, chSlow)

	// Another child exits before its registration, so the monitor peeks it,
	// finds nobody interested, and parks.
	sys.exit(601, termination.Exit(4))
	sys.wake <- 601
	time.Sleep(50 * time.Millisecond)

	// The late registration claims 601 itself. That claim must wake the
	// parked monitor, or the still-pending pid 600 would never be served.
	chFast := make(chan waiter.Result, 1)
	table.RegisterOrResume(601, chFast)

	rFast := receiveResult(t, chFast)
	require.NoError(t, rFast.Err)
	assert.True(t, termination.Exit(4).Equal(rFast.Status))

	sys.exit(600, termination.Exit(5))
	sys.wake <- 600

	rSlow := receiveResult(t, chSlow)
	require.NoError(t, rSlow.Err)
	assert.True(t, termination.Exit(5).Equal(rSlow.Status), "pid 600 got %v", rSlow)
	assert.Equal(t, 0, table.Pending())
}

func TestTableRegistrationFailure(t *testing.T) {
	table := waiter.NewTable(logger.Discard, &erroringSyscalls{err: errors.New("wait machinery broke")})

	ch := make(chan waiter.Result, 1)
	table.RegisterOrResume(500, ch)

	r := receiveResult(t, ch)
	require.Error(t, r.Err)

	var werr *waiter.WaitError
	require.True(t, errors.As(r.Err, &werr))
	assert.Equal(t, 500, werr.Pid)
}

type erroringSyscalls struct {
	err error
}

func (e *erroringSyscalls) PeekExited() (int, error) {
	return 0, e.err
}

func (e *erroringSyscalls) TryReap(pid int) (termination.Status, bool, error) {
	return termination.Status{}, false, e.err
}

func (e *erroringSyscalls) Reap(pid int) (termination.Status, error) {
	return termination.Status{}, e.err
}
