//go:build !windows

package exitest_test

import (
	"os"
	"syscall"
	"testing"

	"github.com/exitest/exitest"
	"github.com/exitest/exitest/capture"
	"github.com/exitest/exitest/termination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var killsSelf = exitest.Register(func(*capture.Values) {
	// SIGKILL cannot be caught, so the child reliably dies by signal.
	syscall.Kill(os.Getpid(), syscall.SIGKILL)
})

func TestExactSignal(t *testing.T) {
	outcome := exitest.Expect(t, killsSelf, termination.Exactly(termination.Signal(syscall.SIGKILL)))

	require.NotNil(t, outcome)
	sig, ok := outcome.Status.Signal()
	require.True(t, ok, "expected a signal status, got %s", outcome.Status)
	assert.Equal(t, syscall.SIGKILL, sig)
}

func TestFailureMatchesASignal(t *testing.T) {
	outcome := exitest.Expect(t, killsSelf, termination.Failure())

	require.NotNil(t, outcome)
	assert.True(t, outcome.Matched)
}

func TestSignalNeverSatisfiesSuccess(t *testing.T) {
	rec := &recorder{T: t}
	outcome := exitest.Expect(rec, killsSelf, termination.Success())

	require.NotNil(t, outcome)
	assert.False(t, outcome.Matched)
	assert.Len(t, rec.failures, 1)
}

func TestExitTestUnderPTY(t *testing.T) {
	outcome := exitest.Expect(t, writesOutput, termination.Success(),
		exitest.WithPTY(),
		exitest.WithStdout(),
	)

	require.NotNil(t, outcome)
	assert.Contains(t, string(outcome.Stdout), "llamas and alpacas")
}
