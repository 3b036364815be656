package debuglog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

var (
	outputOnce sync.Once
	output     io.Writer = os.Stderr
)

// Logger writes key=value debug lines for one component. The zero value and a
// nil *Logger are valid and discard everything.
type Logger struct {
	component string

	enabledOnce sync.Once
	enabled     bool

	loggerOnce sync.Once
	logger     *log.Logger
}

// New returns a logger for component. It is enabled by SCREENSHOT_DEBUG=1 or
// SCREENSHOT_<COMPONENT>_DEBUG=1.
func New(component string) *Logger {
	return &Logger{component: component}
}

// Enabled reports whether debug output is switched on for this component.
func (l *Logger) Enabled() bool {
	if l == nil {
		return false
	}
	l.enabledOnce.Do(func() {
		key := "SCREENSHOT_" + strings.ToUpper(l.component) + "_DEBUG"
		l.enabled = strings.TrimSpace(os.Getenv("SCREENSHOT_DEBUG")) == "1" ||
			strings.TrimSpace(os.Getenv(key)) == "1"
	})
	return l.enabled
}

func (l *Logger) Printf(format string, args ...any) {
	if !l.Enabled() {
		return
	}
	l.loggerOnce.Do(func() {
		l.logger = log.New(writer(), "screenshot/"+l.component+" ", log.LstdFlags|log.Lmicroseconds)
	})
	l.logger.Printf(format, args...)
}

// Logf adapts a caller supplied printf func, falling back to the debug logger.
func (l *Logger) Logf(fn func(format string, args ...any)) func(format string, args ...any) {
	if fn != nil {
		return fn
	}
	return l.Printf
}

func writer() io.Writer {
	outputOnce.Do(func() {
		p := strings.TrimSpace(os.Getenv("SCREENSHOT_DEBUG_FILE"))
		if p == "" {
			return
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "screenshot debug log open failed: %v\n", err)
			return
		}
		output = f
	})
	return output
}
