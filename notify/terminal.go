package notify

import (
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	savedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82"))
	failedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// Terminal prints results to W. It shows no image; the preview size and
// densityDPI are only reported.
type Terminal struct {
	W io.Writer

	mu sync.Mutex
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{W: w}
}

func (t *Terminal) Saved(_ context.Context, fileURI string, preview image.Image, densityDPI int) {
	line := savedStyle.Render("Screenshot saved to") + " " + pathStyle.Render(PathFromURI(fileURI))
	if preview != nil {
		b := preview.Bounds()
		line += " " + dimStyle.Render(fmt.Sprintf("(preview %dx%d, %d dpi)", b.Dx(), b.Dy(), densityDPI))
	}
	t.println(line)
}

func (t *Terminal) Failed(_ context.Context, message string) {
	summary, reason, _ := strings.Cut(message, "\n")
	line := failedStyle.Render(summary)
	if reason != "" {
		line += ": " + reason
	}
	t.println(line)
}

func (t *Terminal) println(s string) {
	if t.W == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.W, s)
}
