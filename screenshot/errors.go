package screenshot

import (
	"errors"

	"go2tv.app/screenshot/internal/debuglog"
)

var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrTokenRejected      = errors.New("token rejected")
	ErrSurfaceUnavailable = errors.New("surface unavailable")
	ErrZeroDimensionFrame = errors.New("invalid frame dimensions")
	ErrFrameUnavailable   = errors.New("could not acquire image")
	ErrFrameTimeout       = errors.New("timed out waiting for frame")
	ErrEncodeFailure      = errors.New("encode failed")
	ErrOutcomeCast        = errors.New("failed to cast save outcome")
	ErrSessionActive      = errors.New("capture already in progress")
	ErrStorageNotWritable = errors.New("storage not writable")
	ErrAbandoned          = errors.New("session abandoned")
	ErrInvalidConfig      = errors.New("invalid session config")
)

var debug = debuglog.New("session")
