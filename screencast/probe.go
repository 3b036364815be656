package screencast

import (
	"os"
	"runtime"
	"strings"
)

// Status is the coarse state of the screen capture permission.
type Status string

const (
	StatusUnknown        Status = "unknown"
	StatusGranted        Status = "granted"
	StatusDenied         Status = "denied"
	StatusPromptRequired Status = "prompt"
	StatusUnavailable    Status = "unavailable"
)

const screenCaptureEnv = "SCREENSHOT_SCREEN_CAPTURE"

type ProbeResult struct {
	Status  Status
	Message string
}

type LookupEnvFunc func(string) (string, bool)

// ProbeScreenCapture reports the screen capture permission state.
// SCREENSHOT_SCREEN_CAPTURE overrides the platform default.
func ProbeScreenCapture(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(screenCaptureEnv); ok {
		return interpretFlag(value)
	}
	switch runtime.GOOS {
	case "darwin":
		return ProbeResult{Status: StatusPromptRequired, Message: "screen recording access will prompt at runtime"}
	case "linux", "windows", "freebsd", "openbsd", "netbsd":
		return ProbeResult{Status: StatusGranted, Message: "no screen capture consent needed for direct display capture"}
	default:
		return ProbeResult{Status: StatusUnavailable, Message: "screen capture unsupported on this platform"}
	}
}

func interpretFlag(value string) ProbeResult {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "granted", "allow", "allowed", "yes", "true", "1":
		return ProbeResult{Status: StatusGranted, Message: "screen capture pre-authorised via " + screenCaptureEnv}
	case "denied", "deny", "no", "false", "0", "blocked":
		return ProbeResult{Status: StatusDenied, Message: "screen capture denied via " + screenCaptureEnv}
	case "prompt", "ask":
		return ProbeResult{Status: StatusPromptRequired, Message: "screen capture will prompt"}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: "screen capture unavailable via " + screenCaptureEnv}
	default:
		return ProbeResult{Status: StatusUnknown, Message: "screen capture permission state unknown"}
	}
}
