//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// setupPlatform builds the child's command line explicitly. CreateProcess
// takes a single string, and arguments containing spaces, quotes or
// backslashes must be escaped per the CommandLineToArgvW rules; see
// commandline.go. Anything bulky (the captured-value blob) travels via the
// environment instead, since command lines have a length limit.
func setupPlatform(cmd *exec.Cmd, conf Config) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: JoinCommandLine(cmd.Args),
	}
}
