// Package notify reports session results to the user.
package notify

import (
	"context"
	"image"
	"net/url"
	"path/filepath"
	"strings"

	"go2tv.app/screenshot/internal/debuglog"
)

const FailureBase = "Screenshot failed"

var debug = debuglog.New("notify")

// Notifier posts a user visible message for a finished session. Both calls
// are fire and forget. densityDPI is the density of the captured display;
// notifiers that show the preview use it to size the image.
type Notifier interface {
	Saved(ctx context.Context, fileURI string, preview image.Image, densityDPI int)
	Failed(ctx context.Context, message string)
}

// FailureMessage is the base failure text followed by reason on its own line
// when reason is set.
func FailureMessage(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return FailureBase
	}
	return FailureBase + "\n" + reason
}

// PathFromURI returns the local path of a file:// URI, or uri unchanged.
func PathFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}

type Discard struct{}

func (Discard) Saved(context.Context, string, image.Image, int) {}
func (Discard) Failed(context.Context, string)                  {}

// Multi fans out to every notifier in order.
type Multi []Notifier

func (m Multi) Saved(ctx context.Context, fileURI string, preview image.Image, densityDPI int) {
	for _, n := range m {
		if n != nil {
			n.Saved(ctx, fileURI, preview, densityDPI)
		}
	}
}

func (m Multi) Failed(ctx context.Context, message string) {
	for _, n := range m {
		if n != nil {
			n.Failed(ctx, message)
		}
	}
}

// Func adapts plain funcs to a Notifier. Nil funcs are skipped.
type Func struct {
	OnSaved  func(ctx context.Context, fileURI string, preview image.Image, densityDPI int)
	OnFailed func(ctx context.Context, message string)
}

func (f Func) Saved(ctx context.Context, fileURI string, preview image.Image, densityDPI int) {
	if f.OnSaved != nil {
		f.OnSaved(ctx, fileURI, preview, densityDPI)
	}
}

func (f Func) Failed(ctx context.Context, message string) {
	if f.OnFailed != nil {
		f.OnFailed(ctx, message)
	}
}
