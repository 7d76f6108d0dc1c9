// Package process spawns the child half of an exit test.
//
// It is a thin, platform-abstracted launcher: build the child's argument
// vector and environment block, wire its standard streams, and start it.
// Waiting for the child is someone else's job - once Running, a Process must
// be handed to a waiter or its OS resources leak.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/exitest/exitest/logger"
	"github.com/exitest/exitest/termination"
)

// State tracks the launcher's lifecycle. Failed is terminal: no process was
// created and no waiting is valid.
type State int32

const (
	NotStarted State = iota
	Spawning
	Running
	Failed
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Spawning:
		return "spawning"
	case Running:
		return "running"
	case Failed:
		return "failed"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// SpawnError means the OS refused to create the child process at all. It is
// an infrastructure problem, never a test outcome.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Config describes the child to spawn.
type Config struct {
	// Path is the executable to run. Exit tests re-execute the current
	// binary, but the launcher does not care.
	Path string

	// Args are the arguments after the executable name.
	Args []string

	// Env is the complete environment block for the child. nil inherits the
	// parent's environment.
	Env []string

	// Dir is the working directory. Empty inherits the parent's.
	Dir string

	// CaptureStdout and CaptureStderr substitute a pipe for the stream and
	// buffer everything the child writes. Streams that are not captured
	// point at the null device.
	CaptureStdout bool
	CaptureStderr bool

	// PTY runs the child on a pseudo-terminal, merging stdout and stderr
	// into the terminal stream. Not available on Windows, and mutually
	// exclusive with CaptureStderr.
	PTY bool
}

// Process is a single spawned child. The zero value is not usable; call New.
type Process struct {
	logger logger.Logger
	conf   Config

	command *exec.Cmd
	pty     *os.File

	mu     sync.Mutex
	state  State
	pid    int
	status termination.Status

	started chan struct{}
	done    chan struct{}

	outWG  sync.WaitGroup
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func New(l logger.Logger, c Config) *Process {
	return &Process{
		logger:  l,
		conf:    c,
		state:   NotStarted,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start spawns the child and returns without waiting for it. On failure the
// process enters the Failed state and a *SpawnError is returned.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.state != NotStarted {
		p.mu.Unlock()
		return fmt.Errorf("process is %s, cannot start", p.state)
	}
	p.state = Spawning
	p.mu.Unlock()

	if p.conf.PTY && p.conf.CaptureStderr {
		return p.failed(&SpawnError{Path: p.conf.Path, Err: errors.New("a PTY merges stdout and stderr, stderr cannot be captured separately")})
	}

	p.command = &exec.Cmd{
		Path: p.conf.Path,
		Args: append([]string{p.conf.Path}, p.conf.Args...),
		Env:  p.conf.Env,
		Dir:  p.conf.Dir,
	}

	setupPlatform(p.command, p.conf)

	if p.conf.PTY {
		ptmx, err := startPTY(p.command)
		if err != nil {
			return p.failed(&SpawnError{Path: p.conf.Path, Err: err})
		}
		p.pty = ptmx

		if p.conf.CaptureStdout {
			p.copyStream("pty", ptmx, &p.stdout)
		} else {
			p.copyStream("pty", ptmx, nil)
		}
	} else {
		// Streams are wired explicitly. Go marks every descriptor
		// close-on-exec and exec.Cmd only passes the three std streams, so
		// nothing else leaks into the child; an inherited stray pipe writer
		// would stop our readers from ever seeing EOF.
		stdoutR, stderrR, err := p.wireStreams()
		if err != nil {
			return p.failed(&SpawnError{Path: p.conf.Path, Err: err})
		}

		err = p.command.Start()
		// Parent must not hold the child's pipe writer ends open.
		p.closeParentEnds()
		if err != nil {
			return p.failed(&SpawnError{Path: p.conf.Path, Err: err})
		}

		if stdoutR != nil {
			p.copyStream("stdout", stdoutR, &p.stdout)
		}
		if stderrR != nil {
			p.copyStream("stderr", stderrR, &p.stderr)
		}
	}

	p.mu.Lock()
	p.pid = p.command.Process.Pid
	p.state = Running
	p.mu.Unlock()
	close(p.started)

	p.logger.Debug("[Process] Spawned %s with PID: %d", p.conf.Path, p.pid)
	return nil
}

func (p *Process) failed(err error) error {
	p.mu.Lock()
	p.state = Failed
	p.mu.Unlock()
	p.logger.Debug("[Process] Spawn failed: %v", err)
	return err
}

// wireStreams prepares stdin/stdout/stderr before spawning. It returns the
// parent's read ends for any captured streams.
func (p *Process) wireStreams() (stdoutR, stderrR *os.File, err error) {
	// An exit test's child never reads from us.
	p.command.Stdin = nil

	if p.conf.CaptureStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, nil, err
		}
		p.command.Stdout = w
		stdoutR = r
	}

	if p.conf.CaptureStderr {
		r, w, err := os.Pipe()
		if err != nil {
			if stdoutR != nil {
				stdoutR.Close()
				p.command.Stdout.(*os.File).Close()
			}
			return nil, nil, err
		}
		p.command.Stderr = w
		stderrR = r
	}

	// Leaving a stream nil points it at the null device.
	return stdoutR, stderrR, nil
}

func (p *Process) closeParentEnds() {
	if w, ok := p.command.Stdout.(*os.File); ok && w != nil {
		w.Close()
	}
	if w, ok := p.command.Stderr.(*os.File); ok && w != nil {
		w.Close()
	}
}

// copyStream drains r into buf (or discards when buf is nil) until EOF.
func (p *Process) copyStream(name string, r io.ReadCloser, buf *bytes.Buffer) {
	p.outWG.Add(1)
	go func() {
		defer p.outWG.Done()
		defer r.Close()

		var dst io.Writer = io.Discard
		if buf != nil {
			dst = buf
		}

		_, err := io.Copy(dst, r)
		if pe, ok := err.(*os.PathError); ok && pe.Err == syscall.EIO {
			// The PTY reporting that its child side closed; not a failure.
			err = nil
		}
		if err != nil {
			p.logger.Debug("[Process] Copying %s failed: %v", name, err)
		}
	}()
}

// Started returns a channel that is closed once the child is running.
func (p *Process) Started() <-chan struct{} {
	return p.started
}

// Done returns a channel that is closed once the child has terminated and
// its status recorded.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Pid returns the child's process identifier. Only valid once Started.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// OSProcess exposes the underlying handle for waiters that block on it.
func (p *Process) OSProcess() *os.Process {
	return p.command.Process
}

// Finish records the child's classified termination status, closes Done,
// waits for the output copiers to drain, and releases the OS handle. It is
// called exactly once, by whoever awaited the process.
func (p *Process) Finish(status termination.Status) {
	p.mu.Lock()
	p.state = Terminated
	p.status = status
	p.mu.Unlock()
	close(p.done)

	// Sometimes (in containers) the copy never sees EOF. Don't hang the
	// whole test run over captured output.
	if err := waitTimeout(&p.outWG, 10*time.Second); err != nil {
		p.logger.Debug("[Process] Timed out draining output of PID: %d", p.pid)
	}
	if p.pty != nil {
		p.pty.Close()
	}
	p.Release()

	p.logger.Debug("[Process] PID: %d finished: %s", p.pid, status)
}

// Release frees the OS handle without waiting. Used on error paths where no
// status will ever be recorded.
func (p *Process) Release() {
	if p.command != nil && p.command.Process != nil {
		p.command.Process.Release()
	}
}

// Status returns the recorded termination status. Only valid once Done.
func (p *Process) Status() termination.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Stdout returns everything the child wrote to stdout (or the PTY). Only
// valid once Done.
func (p *Process) Stdout() []byte {
	return p.stdout.Bytes()
}

// Stderr returns everything the child wrote to stderr. Only valid once Done.
func (p *Process) Stderr() []byte {
	return p.stderr.Bytes()
}

// waitTimeout waits on the group for at most timeout. On timeout the helper
// goroutine stays blocked in wg.Wait until the stragglers finish; a copier
// wedged on an inherited pipe end can hold it for the process lifetime.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) error {
	c := make(chan struct{})
	go func() {
		wg.Wait()
		close(c)
	}()

	select {
	case <-c:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout")
	}
}
