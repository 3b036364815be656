//go:build unix

package processutil

import (
	"os/exec"
	"syscall"
)

// Detach starts cmd in its own process group so a terminal SIGINT aimed at
// us does not reach it.
func Detach(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
