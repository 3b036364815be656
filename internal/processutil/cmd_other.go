//go:build !unix && !windows

package processutil

import "os/exec"

func Detach(cmd *exec.Cmd) {}
