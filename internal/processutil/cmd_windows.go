//go:build windows

package processutil

import (
	"os/exec"
	"syscall"
)

// Detach hides the console window of cmd and starts it in its own process
// group so console Ctrl+C events do not reach it.
func Detach(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}
