//go:build !windows

package process

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// startPTY starts the command with its standard streams connected to a new
// pseudo-terminal and returns the controlling side.
func startPTY(c *exec.Cmd) (*os.File, error) {
	return pty.Start(c)
}
