//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupPlatform places the child in its own process group so that signals
// aimed at the test runner's group don't hit the child, and a child that
// signals its own group can't take the runner down. The runtime resets
// handled signal dispositions across exec, so a child that dies by signal
// reports that signal faithfully.
func setupPlatform(cmd *exec.Cmd, conf Config) {
	// See https://github.com/kr/pty/issues/35 for why not under a PTY.
	if !conf.PTY {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setpgid: true,
			Pgid:    0,
		}
	}
}
