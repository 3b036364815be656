package request

import (
	"context"
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
	"go2tv.app/screenshot/internal/apis"
)

var ErrUnexpectedResponse = errors.New("unexpected response from dbus")

const (
	interfaceName  = "org.freedesktop.portal.Request"
	responseMember = "Response"
	closeCallName  = interfaceName + ".Close"

	pathPrefix = apis.ObjectPath + "/request/"
)

type ResponseStatus = uint32

const (
	Success   ResponseStatus = 0
	Cancelled ResponseStatus = 1
	Ended     ResponseStatus = 2
)

// Close dismisses the request at path, closing any dialog it shows.
func Close(path dbus.ObjectPath) error {
	return apis.CallOnObject(path, closeCallName)
}

// Path is the object path the portal gives a request made by sender with
// handle_token token.
func Path(sender, token string) dbus.ObjectPath {
	sender = strings.ReplaceAll(strings.TrimPrefix(sender, ":"), ".", "_")
	return dbus.ObjectPath(pathPrefix + sender + "/" + token)
}

// Pending is a subscription to the Response of a request that has not been
// made yet. Subscribing first means a fast portal cannot answer before we
// listen.
type Pending struct {
	path dbus.ObjectPath
	sub  *apis.Subscription
}

// Expect subscribes to the Response of the request that will be created
// with token.
func Expect(token string) (*Pending, error) {
	sender, err := apis.UniqueName()
	if err != nil {
		return nil, err
	}
	path := Path(sender, token)
	sub, err := apis.ListenOnSignal(path, interfaceName, responseMember)
	if err != nil {
		return nil, err
	}
	return &Pending{path: path, sub: sub}, nil
}

// Wait blocks for the Response of the request at actual, the path the call
// returned. Old portals may return a path other than the expected one, in
// which case Wait re-subscribes. Cancelling ctx closes the request.
func (p *Pending) Wait(ctx context.Context, actual dbus.ObjectPath) (ResponseStatus, map[string]dbus.Variant, error) {
	if actual != "" && actual != p.path {
		_ = p.sub.Close()
		sub, err := apis.ListenOnSignal(actual, interfaceName, responseMember)
		if err != nil {
			p.sub = nil
			return Ended, nil, err
		}
		p.path, p.sub = actual, sub
	}

	for {
		select {
		case <-ctx.Done():
			_ = Close(p.path)
			return Ended, nil, ctx.Err()
		case sig, ok := <-p.sub.C:
			if !ok {
				return Ended, nil, ErrUnexpectedResponse
			}
			if sig.Path != p.path {
				continue
			}
			return ParseResponse(sig.Body)
		}
	}
}

func (p *Pending) Close() error {
	return p.sub.Close()
}

// ParseResponse decodes the (u, a{sv}) body of a Response signal.
func ParseResponse(body []any) (ResponseStatus, map[string]dbus.Variant, error) {
	if len(body) != 2 {
		return Ended, nil, ErrUnexpectedResponse
	}

	status, ok := body[0].(ResponseStatus)
	if !ok {
		return Ended, nil, ErrUnexpectedResponse
	}
	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return Ended, nil, ErrUnexpectedResponse
	}
	return status, results, nil
}
