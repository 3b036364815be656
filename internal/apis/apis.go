package apis

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

const (
	ObjectName        = "org.freedesktop.portal.Desktop"
	ObjectPath        = "/org/freedesktop/portal/desktop"
	CallBaseName      = "org.freedesktop.portal"
	PropertiesGetName = "org.freedesktop.DBus.Properties.Get"
)

// Target names a D-Bus destination and object. The zero value addresses the
// desktop portal.
type Target struct {
	Dest string
	Path dbus.ObjectPath
}

func (t Target) normalize() Target {
	if t.Dest == "" {
		t.Dest = ObjectName
	}
	if t.Path == "" {
		t.Path = ObjectPath
	}
	return t
}

func Call(callName string, args ...any) (any, error) {
	return CallTarget(Target{}, callName, args...)
}

// CallTarget invokes callName on target and stores a single return value.
func CallTarget(target Target, callName string, args ...any) (any, error) {
	var result any
	err := CallInto(target, callName, &result, args...)
	return result, err
}

// CallInto invokes callName on target and stores the reply into dst, which
// must be a pointer of the reply's type (e.g. *dbus.UnixFD).
func CallInto(target Target, callName string, dst any, args ...any) error {
	call, err := callOnObject(target, callName, args...)
	if err != nil {
		return err
	}
	return call.Store(dst)
}

func CallOnObject(path dbus.ObjectPath, callName string, args ...any) error {
	_, err := callOnObject(Target{Path: path}, callName, args...)
	return err
}

func callOnObject(target Target, callName string, args ...any) (*dbus.Call, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}

	target = target.normalize()
	obj := conn.Object(target.Dest, target.Path)
	call := obj.Call(callName, 0, args...)
	return call, call.Err
}

// UniqueName is our connection's unique bus name, e.g. ":1.42".
func UniqueName() (string, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return "", err
	}
	names := conn.Names()
	if len(names) == 0 {
		return "", errors.New("session bus connection has no unique name")
	}
	return names[0], nil
}

func GetProperty(interfaceName, property string) (any, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}

	obj := conn.Object(ObjectName, ObjectPath)
	call := obj.Call(PropertiesGetName, 0, interfaceName, property)
	if call.Err != nil {
		return nil, call.Err
	}

	var value any
	err = call.Store(&value)
	return value, err
}

// Subscription delivers signals matching one object path, interface and member.
type Subscription struct {
	C <-chan *dbus.Signal

	conn    *dbus.Conn
	ch      chan *dbus.Signal
	options []dbus.MatchOption
}

// Close removes the match rule and detaches the channel from the connection.
func (s *Subscription) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	s.conn.RemoveSignal(s.ch)
	return s.conn.RemoveMatchSignal(s.options...)
}

func ListenOnSignal(path dbus.ObjectPath, iface, signalName string) (*Subscription, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = ObjectPath
	}

	options := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(signalName),
	}
	if err := conn.AddMatchSignal(options...); err != nil {
		return nil, err
	}

	ch := make(chan *dbus.Signal, 4)
	conn.Signal(ch)
	return &Subscription{C: ch, conn: conn, ch: ch, options: options}, nil
}
