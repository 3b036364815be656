// Package screencast issues screen capture grants. PortalBroker asks
// xdg-desktop-portal over D-Bus; LocalBroker grants from an environment probe
// and an optional interactive prompt.
package screencast

import (
	"context"
	"errors"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/internal/debuglog"
)

var (
	ErrDenied      = errors.New("screen capture permission denied")
	ErrUnavailable = errors.New("screen capture permission unavailable")
)

var debug = debuglog.New("screencast")

// Listener receives the answer to one AcquireToken call. At most one method
// is invoked, from any goroutine.
type Listener interface {
	OnGranted()
	OnDenied(err error)
}

// Broker hands out capture tokens.
type Broker interface {
	// AcquireToken asks for permission asynchronously and answers on l.
	AcquireToken(ctx context.Context, l Listener)
	// CreateToken returns an already granted token, or nil. Each granted
	// token is handed out once.
	CreateToken() capture.Token
}

// ListenerFuncs adapts two funcs to a Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Granted func()
	Denied  func(error)
}

func (f ListenerFuncs) OnGranted() {
	if f.Granted != nil {
		f.Granted()
	}
}

func (f ListenerFuncs) OnDenied(err error) {
	if f.Denied != nil {
		f.Denied(err)
	}
}
