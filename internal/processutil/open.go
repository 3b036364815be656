package processutil

import (
	"context"
	"os/exec"
	"runtime"
)

// OpenCommand builds a detached command that opens target with the desktop's
// default handler.
func OpenCommand(ctx context.Context, target string) *exec.Cmd {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	Detach(cmd)
	return cmd
}
