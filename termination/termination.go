// Package termination describes how a process ended and what a caller
// expected of it.
//
// A Status is produced by the exit waiter after a child terminates. An
// Expectation is supplied by the caller and compared against the observed
// Status with Matches, which is deliberately fuzzy: Failure matches every
// status except a clean zero exit, so a test can assert "this must fail"
// without pinning a platform-dependent code.
package termination

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

type variant int8

const (
	variantExitCode variant = iota
	variantSignal
)

// Status is the classified result of a process ending: an exit code, or the
// signal that killed it. On Windows the signal variant is never produced;
// uncaught faults surface as NTSTATUS-style exit codes instead.
type Status struct {
	variant variant
	value   int32
}

// Exit returns a Status for a process that exited with the given code.
func Exit(code int) Status {
	return Status{variant: variantExitCode, value: int32(code)}
}

// Signal returns a Status for a process killed by the given signal.
func Signal(sig syscall.Signal) Status {
	return Status{variant: variantSignal, value: int32(sig)}
}

// ExitCode returns the exit code, and whether the status is the exit code
// variant at all.
func (s Status) ExitCode() (int32, bool) {
	return s.value, s.variant == variantExitCode
}

// Signal returns the killing signal, and whether the status is the signal
// variant at all.
func (s Status) Signal() (syscall.Signal, bool) {
	return syscall.Signal(s.value), s.variant == variantSignal
}

// Equal reports strict field-wise identity, including the variant tag. An
// exit code never equals a signal of the same numeric value. Assertions
// should go through Expectation.Matches instead.
func (s Status) Equal(other Status) bool {
	return s.variant == other.variant && s.value == other.value
}

func (s Status) String() string {
	if s.variant == variantSignal {
		return fmt.Sprintf("signal: %s (%d)", SignalString(syscall.Signal(s.value)), s.value)
	}
	return fmt.Sprintf("exit status %d", s.value)
}

type expectKind int8

const (
	expectSuccess expectKind = iota
	expectFailure
	expectExact
)

// Expectation is what a caller expects of a child's termination: success
// (exit code zero), failure (anything else), or one exact status.
type Expectation struct {
	kind   expectKind
	status Status
}

// Success expects a zero exit code and nothing else. A signal never
// satisfies it, whatever its number.
func Success() Expectation {
	return Expectation{kind: expectSuccess}
}

// Failure expects any nonzero exit code or any signal.
func Failure() Expectation {
	return Expectation{kind: expectFailure}
}

// Exactly expects one specific status, compared by strict identity.
func Exactly(s Status) Expectation {
	return Expectation{kind: expectExact, status: s}
}

// Matches reports whether the observed status satisfies the expectation.
func (e Expectation) Matches(actual Status) bool {
	switch e.kind {
	case expectSuccess:
		return actual.Equal(Exit(0))
	case expectFailure:
		return !actual.Equal(Exit(0))
	default:
		return e.status.Equal(actual)
	}
}

// ExpectsFailure reports whether a clean zero exit would be a mismatch. The
// child process uses this to pick a fallthrough exit status that cannot be
// mistaken for a pass.
func (e Expectation) ExpectsFailure() bool {
	return !e.Matches(Exit(0))
}

func (e Expectation) String() string {
	switch e.kind {
	case expectSuccess:
		return "success"
	case expectFailure:
		return "failure"
	default:
		return e.status.String()
	}
}

// MarshalText encodes the expectation for transport to the child process.
func (e Expectation) MarshalText() ([]byte, error) {
	switch e.kind {
	case expectSuccess:
		return []byte("success"), nil
	case expectFailure:
		return []byte("failure"), nil
	default:
		if sig, ok := e.status.Signal(); ok {
			return []byte(fmt.Sprintf("signal=%d", sig)), nil
		}
		code, _ := e.status.ExitCode()
		return []byte(fmt.Sprintf("exit=%d", code)), nil
	}
}

// UnmarshalText decodes an expectation produced by MarshalText.
func (e *Expectation) UnmarshalText(text []byte) error {
	s := string(text)
	switch {
	case s == "success":
		*e = Success()
	case s == "failure":
		*e = Failure()
	case strings.HasPrefix(s, "exit="):
		code, err := strconv.Atoi(strings.TrimPrefix(s, "exit="))
		if err != nil {
			return fmt.Errorf("malformed expectation %q: %w", s, err)
		}
		*e = Exactly(Exit(code))
	case strings.HasPrefix(s, "signal="):
		sig, err := strconv.Atoi(strings.TrimPrefix(s, "signal="))
		if err != nil {
			return fmt.Errorf("malformed expectation %q: %w", s, err)
		}
		*e = Exactly(Signal(syscall.Signal(sig)))
	default:
		return fmt.Errorf("malformed expectation %q", s)
	}
	return nil
}
