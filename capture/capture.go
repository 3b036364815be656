package capture

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go2tv.app/screenshot/internal/debuglog"
)

var (
	ErrNotImplemented     = errors.New("screen capture backend is not implemented on this platform")
	ErrSurfaceUnavailable = errors.New("capture surface unavailable")
	ErrTokenRejected      = errors.New("capture token rejected")
	ErrInvalidOptions     = errors.New("invalid screen capture options")
)

var debug = debuglog.New("capture")

// Backend selects the platform capture surface.
type Backend string

const (
	// BackendAuto uses PipeWire for portal grants and the display backend
	// for anything else.
	BackendAuto    Backend = "auto"
	BackendPortal  Backend = "portal"
	BackendDisplay Backend = "display"
)

// Geometry is the display size snapshot a session is sized from.
type Geometry struct {
	Width      int
	Height     int
	DensityDPI int
}

func (g Geometry) Valid() bool {
	return g.Width > 0 && g.Height > 0
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d@%ddpi", g.Width, g.Height, g.DensityDPI)
}

// Token is a single-use grant of screen capture rights.
type Token interface {
	Valid() bool
	// Invalidate releases the grant. Calls after the first are no-ops.
	Invalidate() error
}

// PipeWireGrant is a token backed by a portal session that can hand out a
// PipeWire remote for the granted stream.
type PipeWireGrant interface {
	Token
	OpenPipeWireRemote() (fd int, nodeID uint32, err error)
}

// StreamSizer is implemented by grants that know the size of the granted
// stream. The PipeWire backend prefers it over the session geometry.
type StreamSizer interface {
	StreamSize() (width, height int)
}

type grant struct {
	invalid atomic.Bool
}

// NewToken returns a token that carries no platform state. It is used by
// backends that need no OS handle beyond the grant itself.
func NewToken() Token {
	return &grant{}
}

func (g *grant) Valid() bool { return !g.invalid.Load() }

func (g *grant) Invalidate() error {
	g.invalid.Store(true)
	return nil
}

// Options configures how a frame source is opened.
type Options struct {
	Backend Backend
	// DisplayIndex selects the monitor for the display backend. Default is 0.
	DisplayIndex int
}

// Source delivers at most one frame and must be closed by its owner.
type Source interface {
	// OnFrame registers the single frame callback. It fires at most once and
	// only the first registration is kept.
	OnFrame(fn func(*Frame))
	// Close releases the capture surface. It is idempotent and safe to call
	// before any frame arrives.
	Close() error
}

type Opener interface {
	Open(token Token, geometry Geometry) (Source, error)
}

type OpenerFunc func(token Token, geometry Geometry) (Source, error)

func (f OpenerFunc) Open(token Token, geometry Geometry) (Source, error) {
	return f(token, geometry)
}

// NewOpener binds options into an Opener.
func NewOpener(options *Options) Opener {
	return OpenerFunc(func(token Token, geometry Geometry) (Source, error) {
		return Open(token, geometry, options)
	})
}

// Open allocates a capture surface for token sized to geometry. Errors wrap
// ErrTokenRejected or ErrSurfaceUnavailable.
func Open(token Token, geometry Geometry, options *Options) (Source, error) {
	opts, err := validateOpenOptions(options)
	if err != nil {
		return nil, err
	}
	if token == nil || !token.Valid() {
		return nil, ErrTokenRejected
	}
	if !geometry.Valid() {
		return nil, fmt.Errorf("%w: geometry %s", ErrSurfaceUnavailable, geometry)
	}

	backend, err := pickBackend(token, opts.Backend)
	if err != nil {
		return nil, err
	}
	debug.Printf("open backend=%s geometry=%s display=%d", backend, geometry, opts.DisplayIndex)

	switch backend {
	case BackendPortal:
		return openPipeWire(token.(PipeWireGrant), geometry)
	default:
		return openDisplay(geometry, opts.DisplayIndex)
	}
}
