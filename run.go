package exitest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/exitest/exitest/capture"
	"github.com/exitest/exitest/env"
	"github.com/exitest/exitest/logger"
	"github.com/exitest/exitest/process"
	"github.com/exitest/exitest/termination"
	"github.com/exitest/exitest/waiter"
)

// Outcome is the result of one exit-test invocation. Stdout and Stderr are
// populated only when capture was requested.
type Outcome struct {
	// Status is how the child actually terminated.
	Status termination.Status

	// Matched reports whether Status satisfies the expectation.
	Matched bool

	Stdout []byte
	Stderr []byte

	// Duration is the child's wall-clock lifetime.
	Duration time.Duration
}

type runConfig struct {
	values        []capture.Value
	captureStdout bool
	captureStderr bool
	pty           bool
	extraEnv      []string
	executable    string
	logger        logger.Logger
	waiter        waiter.Waiter
}

// RunOption adjusts a single exit-test invocation.
type RunOption func(*runConfig)

// WithCapturedValues supplies the values the body will receive. They must
// match the types declared at registration, in order.
func WithCapturedValues(vals ...capture.Value) RunOption {
	return func(c *runConfig) { c.values = vals }
}

// WithStdout captures everything the child writes to standard output.
func WithStdout() RunOption {
	return func(c *runConfig) { c.captureStdout = true }
}

// WithStderr captures everything the child writes to standard error.
func WithStderr() RunOption {
	return func(c *runConfig) { c.captureStderr = true }
}

// WithPTY runs the child on a pseudo-terminal. Unix only; stdout capture
// then sees the merged terminal stream.
func WithPTY() RunOption {
	return func(c *runConfig) { c.pty = true }
}

// WithEnv adds KEY=VALUE pairs to the child's environment on top of the
// inherited one.
func WithEnv(pairs ...string) RunOption {
	return func(c *runConfig) { c.extraEnv = append(c.extraEnv, pairs...) }
}

// WithExecutable overrides the binary to re-execute. The default is the
// current executable; overriding it is mainly useful for tests.
func WithExecutable(path string) RunOption {
	return func(c *runConfig) { c.executable = path }
}

// WithLogger sets the logger for the launcher's lifecycle debugging. The
// default waiter is shared across invocations and keeps a discard logger;
// pass WithWaiter(waiter.New(l)) as well to see wait-side logging.
func WithLogger(l logger.Logger) RunOption {
	return func(c *runConfig) { c.logger = l }
}

// WithWaiter overrides the platform waiter, mainly for tests.
func WithWaiter(w waiter.Waiter) RunOption {
	return func(c *runConfig) { c.waiter = w }
}

// The platform waiter is shared by every invocation so one background
// monitor serves them all.
var defaultWaiter = sync.OnceValue(func() waiter.Waiter {
	return waiter.New(logger.Discard)
})

// Run executes the registered body in a freshly spawned copy of the current
// binary and compares its termination status against expect.
//
// The returned error is always an infrastructure problem - the child could
// not be spawned, or waiting for it failed - and never means the exit test
// merely did not match; that is Outcome.Matched. Infrastructure errors are
// never retried.
func Run(ctx context.Context, reg *Registration, expect termination.Expectation, opts ...RunOption) (*Outcome, error) {
	if inChild {
		return nil, errors.New("nested exit tests are not supported")
	}

	cfg := runConfig{logger: logger.Discard}
	for _, o := range opts {
		o(&cfg)
	}

	if err := capture.Conform(cfg.values, reg.types); err != nil {
		return nil, err
	}
	blob, err := capture.Encode(cfg.values)
	if err != nil {
		return nil, err
	}
	expectText, err := expect.MarshalText()
	if err != nil {
		return nil, err
	}

	exe := cfg.executable
	if exe == "" {
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating the current executable: %w", err)
		}
	}

	// Inherit the parent environment, then overwrite the protocol markers
	// so stale inherited ones cannot confuse the child.
	environ := env.FromSlice(os.Environ())
	for _, pair := range cfg.extraEnv {
		if k, v, ok := env.Split(pair); ok {
			environ.Set(k, v)
		}
	}
	environ.Set(EnvIdentity, reg.id.String())
	environ.Set(EnvValues, blob)
	environ.Set(EnvExpectation, string(expectText))

	p := process.New(cfg.logger, process.Config{
		Path:          exe,
		Env:           environ.ToSlice(),
		CaptureStdout: cfg.captureStdout,
		CaptureStderr: cfg.captureStderr,
		PTY:           cfg.pty,
	})

	start := time.Now()
	if err := p.Start(); err != nil {
		// No process exists; the waiter is never consulted.
		return nil, err
	}

	w := cfg.waiter
	if w == nil {
		w = defaultWaiter()
	}

	status, err := w.Await(ctx, p)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Status:   status,
		Matched:  expect.Matches(status),
		Stdout:   p.Stdout(),
		Stderr:   p.Stderr(),
		Duration: time.Since(start),
	}, nil
}

// Expect runs the exit test and records failures on t: infrastructure
// errors and status mismatches are both test failures, but are reported
// distinctly. It returns the outcome, or nil if the test never ran.
func Expect(t testing.TB, reg *Registration, expect termination.Expectation, opts ...RunOption) *Outcome {
	t.Helper()

	outcome, err := Run(context.Background(), reg, expect, opts...)
	if err != nil {
		t.Errorf("exit test %s: infrastructure failure: %v", reg.id, err)
		return nil
	}
	if !outcome.Matched {
		t.Errorf("exit test %s: expected %s, but the child terminated with %s", reg.id, expect, outcome.Status)
	}
	return outcome
}
