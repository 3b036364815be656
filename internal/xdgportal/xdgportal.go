package xdgportal

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenshot/internal/apis"
	"go2tv.app/screenshot/internal/convert"
	"go2tv.app/screenshot/internal/request"
	"go2tv.app/screenshot/internal/session"
)

const (
	interfaceName      = apis.CallBaseName + ".ScreenCast"
	createSessionName  = interfaceName + ".CreateSession"
	selectSourcesName  = interfaceName + ".SelectSources"
	startName          = interfaceName + ".Start"
	openPipeWireRemote = interfaceName + ".OpenPipeWireRemote"
)

const (
	SourceTypeMonitor uint32 = 1
	SourceTypeWindow  uint32 = 2
	SourceTypeVirtual uint32 = 4
)

const (
	CursorModeHidden   uint32 = 1
	CursorModeEmbedded uint32 = 2
	CursorModeMetadata uint32 = 4
)

const (
	PersistModeNone       uint32 = 0
	PersistModeRunning    uint32 = 1
	PersistModePersistent uint32 = 2
)

var (
	// ErrCancelled is returned when the user dismisses a portal dialog.
	ErrCancelled = errors.New("portal request was cancelled")
	ErrNoStreams = errors.New("portal returned no streams")
)

func getUint32Property(property string) (uint32, error) {
	value, err := apis.GetProperty(interfaceName, property)
	if err != nil {
		return 0, err
	}

	result, ok := value.(uint32)
	if !ok {
		return 0, fmt.Errorf("property %s returned unexpected type %T", property, value)
	}
	return result, nil
}

func GetAvailableSourceTypes() (uint32, error) {
	return getUint32Property("AvailableSourceTypes")
}

func GetVersion() (uint32, error) {
	return getUint32Property("version")
}

type Stream struct {
	NodeID     uint32
	Position   [2]int32
	Size       [2]int32
	SourceType uint32
	ID         string
}

// StartResult is the outcome of a granted Start request.
type StartResult struct {
	Streams []Stream
	// RestoreToken, when set, lets a later SelectSources skip the dialog.
	RestoreToken string
}

type Session struct {
	Path         dbus.ObjectPath
	sessionToken string
}

type SelectSourcesOptions struct {
	Types        uint32
	Multiple     bool
	CursorMode   uint32
	RestoreToken string
	PersistMode  uint32
}

// CreateSession opens a ScreenCast session. Cancelling ctx abandons the
// pending request.
func CreateSession(ctx context.Context) (*Session, error) {
	handle := session.NewToken()
	data := map[string]dbus.Variant{
		"handle_token":         convert.FromString(handle),
		"session_handle_token": session.GenerateToken(),
	}

	results, err := callRequest(ctx, createSessionName, handle, data)
	if err != nil {
		return nil, err
	}

	sessionHandle, ok := results["session_handle"]
	if !ok {
		return nil, fmt.Errorf("CreateSession response missing session_handle")
	}
	var sessionPath dbus.ObjectPath
	switch v := sessionHandle.Value().(type) {
	case string:
		sessionPath = dbus.ObjectPath(v)
	case dbus.ObjectPath:
		sessionPath = v
	default:
		return nil, fmt.Errorf("CreateSession session_handle has unexpected type %T", v)
	}
	return &Session{Path: sessionPath, sessionToken: handle}, nil
}

// SelectSources configures what the user is asked to share.
func (s *Session) SelectSources(ctx context.Context, options SelectSourcesOptions) error {
	handle := session.NewToken()
	data := map[string]dbus.Variant{
		"handle_token": convert.FromString(handle),
	}
	if options.Types != 0 {
		data["types"] = convert.FromUint32(options.Types)
	}
	if options.Multiple {
		data["multiple"] = convert.FromBool(options.Multiple)
	}
	if options.CursorMode != 0 {
		data["cursor_mode"] = convert.FromUint32(options.CursorMode)
	}
	if options.RestoreToken != "" {
		data["restore_token"] = convert.FromString(options.RestoreToken)
	}
	if options.PersistMode != 0 {
		data["persist_mode"] = convert.FromUint32(options.PersistMode)
	}

	_, err := callRequest(ctx, selectSourcesName, handle, s.Path, data)
	return err
}

// Start shows the share dialog, unless a restore token skips it, and
// returns the granted streams.
func (s *Session) Start(ctx context.Context, parentWindow string) (*StartResult, error) {
	handle := session.NewToken()
	data := map[string]dbus.Variant{
		"handle_token": convert.FromString(handle),
	}

	results, err := callRequest(ctx, startName, handle, s.Path, parentWindow, data)
	if err != nil {
		return nil, err
	}
	return parseStartResults(results)
}

// OpenPipeWireRemote returns a PipeWire fd limited to the granted streams.
// The caller owns the fd.
func (s *Session) OpenPipeWireRemote() (int, error) {
	var fd dbus.UnixFD
	err := apis.CallInto(apis.Target{}, openPipeWireRemote, &fd, s.Path, map[string]dbus.Variant{})
	if err != nil {
		return -1, err
	}
	return int(fd), nil
}

func (s *Session) Close() error {
	return session.Close(s.Path)
}

// callRequest makes a portal call that answers through a Request object
// and waits for its Response. handle is the handle_token passed in args.
func callRequest(ctx context.Context, callName, handle string, args ...any) (map[string]dbus.Variant, error) {
	pending, err := request.Expect(handle)
	if err != nil {
		return nil, err
	}
	defer pending.Close()

	result, err := apis.Call(callName, args...)
	if err != nil {
		return nil, err
	}
	requestPath, ok := result.(dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("%s returned unexpected type %T", callName, result)
	}

	status, results, err := pending.Wait(ctx, requestPath)
	if err != nil {
		return nil, err
	}
	if status >= request.Cancelled {
		return nil, ErrCancelled
	}
	return results, nil
}

// Screen picks the stream to grab: the first monitor, or the first stream
// when the portal did not report source types.
func (r *StartResult) Screen() (Stream, bool) {
	if r == nil || len(r.Streams) == 0 {
		return Stream{}, false
	}
	for _, st := range r.Streams {
		if st.SourceType&SourceTypeMonitor != 0 {
			return st, true
		}
	}
	return r.Streams[0], true
}

func parseStartResults(results map[string]dbus.Variant) (*StartResult, error) {
	out := &StartResult{}
	if v, ok := results["restore_token"]; ok {
		out.RestoreToken, _ = convert.ToString(v)
	}

	v, ok := results["streams"]
	if !ok {
		return nil, ErrNoStreams
	}
	raw, err := streamTuples(v.Value())
	if err != nil {
		return nil, err
	}
	for _, tuple := range raw {
		if st, ok := parseStream(tuple); ok {
			out.Streams = append(out.Streams, st)
		}
	}
	if len(out.Streams) == 0 {
		return nil, ErrNoStreams
	}
	return out, nil
}

// streamTuples unpacks a(ua{sv}), which godbus decodes either as [][]any or
// as []any of []any depending on the signature it saw.
func streamTuples(value any) ([][]any, error) {
	switch v := value.(type) {
	case [][]any:
		return v, nil
	case []any:
		out := make([][]any, 0, len(v))
		for _, item := range v {
			if tuple, ok := item.([]any); ok {
				out = append(out, tuple)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("streams has unexpected type %T", value)
	}
}

func parseStream(tuple []any) (Stream, bool) {
	if len(tuple) < 2 {
		return Stream{}, false
	}
	nodeID, ok := tuple[0].(uint32)
	if !ok {
		return Stream{}, false
	}
	st := Stream{NodeID: nodeID}

	props, _ := tuple[1].(map[string]dbus.Variant)
	for key, prop := range props {
		switch key {
		case "position":
			st.Position, _ = parseInt32Pair(prop.Value())
		case "size":
			st.Size, _ = parseInt32Pair(prop.Value())
		case "source_type":
			st.SourceType, _ = prop.Value().(uint32)
		case "id":
			st.ID, _ = prop.Value().(string)
		}
	}
	return st, true
}

func parseInt32Pair(value any) ([2]int32, bool) {
	values, ok := value.([]any)
	if !ok || len(values) < 2 {
		return [2]int32{}, false
	}
	left, lok := values[0].(int32)
	right, rok := values[1].(int32)
	if !lok || !rok {
		return [2]int32{}, false
	}
	return [2]int32{left, right}, true
}
