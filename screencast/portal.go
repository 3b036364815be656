package screencast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/internal/xdgportal"
)

type portalSession interface {
	SelectSources(ctx context.Context, options xdgportal.SelectSourcesOptions) error
	Start(ctx context.Context, parentWindow string) (*xdgportal.StartResult, error)
	OpenPipeWireRemote() (int, error)
	Close() error
}

// PortalBroker obtains grants from the xdg-desktop-portal ScreenCast
// interface. Grants are requested with persist mode 2 and the returned
// restore token is kept in Store, so later requests skip the dialog.
type PortalBroker struct {
	// Store keeps the restore token. Nil disables persistence.
	Store *TokenStore
	// SourceTypes defaults to monitors.
	SourceTypes uint32
	// CursorMode defaults to an embedded cursor.
	CursorMode   uint32
	ParentWindow string

	Logf func(format string, args ...any)

	createSession func(ctx context.Context) (portalSession, error)

	mu      sync.Mutex
	pending *portalGrant
}

// PortalAvailable reports whether a ScreenCast portal answers on the
// session bus.
func PortalAvailable() bool {
	v, err := xdgportal.GetVersion()
	debug.Printf("portal_probe version=%d err=%v", v, err)
	return err == nil
}

// AcquireToken runs the portal request flow on its own goroutine. A
// dismissed dialog is reported as ErrDenied.
func (b *PortalBroker) AcquireToken(ctx context.Context, l Listener) {
	go func() {
		g, err := b.request(ctx)
		if err == nil && ctx.Err() != nil {
			_ = g.Invalidate()
			err = ctx.Err()
		}
		if err != nil {
			if errors.Is(err, xdgportal.ErrCancelled) {
				err = fmt.Errorf("%w: %w", ErrDenied, err)
			}
			b.logf("broker=portal acquire_err=%v", err)
			l.OnDenied(err)
			return
		}

		b.mu.Lock()
		if old := b.pending; old != nil {
			_ = old.Invalidate()
		}
		b.pending = g
		b.mu.Unlock()
		l.OnGranted()
	}()
}

// CreateToken hands out the grant obtained by the last AcquireToken, once.
func (b *PortalBroker) CreateToken() capture.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.pending
	b.pending = nil
	if g == nil || !g.Valid() {
		return nil
	}
	return g
}

// Forget drops the stored restore token and any pending grant.
func (b *PortalBroker) Forget() error {
	b.mu.Lock()
	g := b.pending
	b.pending = nil
	b.mu.Unlock()
	if g != nil {
		_ = g.Invalidate()
	}
	return b.Store.Delete()
}

func (b *PortalBroker) request(ctx context.Context) (*portalGrant, error) {
	restore, err := b.Store.Load()
	if err != nil {
		b.logf("broker=portal restore_token_load_err=%v", err)
		restore = ""
	}

	g, err := b.requestOnce(ctx, restore)
	if err != nil && restore != "" && !errors.Is(err, xdgportal.ErrCancelled) && ctx.Err() == nil {
		b.logf("broker=portal restore_failed err=%v retry_without_token", err)
		if derr := b.Store.Delete(); derr != nil {
			b.logf("broker=portal restore_token_delete_err=%v", derr)
		}
		g, err = b.requestOnce(ctx, "")
	}
	return g, err
}

func (b *PortalBroker) requestOnce(ctx context.Context, restore string) (*portalGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	create := b.createSession
	if create == nil {
		create = func(ctx context.Context) (portalSession, error) { return xdgportal.CreateSession(ctx) }
	}
	s, err := create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create portal session: %w", err)
	}

	sourceTypes := b.SourceTypes
	if sourceTypes == 0 {
		sourceTypes = xdgportal.SourceTypeMonitor
	}
	cursorMode := b.CursorMode
	if cursorMode == 0 {
		cursorMode = xdgportal.CursorModeEmbedded
	}

	if err := s.SelectSources(ctx, xdgportal.SelectSourcesOptions{
		Types:        sourceTypes,
		CursorMode:   cursorMode,
		RestoreToken: restore,
		PersistMode:  xdgportal.PersistModePersistent,
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("select sources: %w", err)
	}

	res, err := s.Start(ctx, b.ParentWindow)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start: %w", err)
	}
	stream, ok := res.Screen()
	if !ok {
		_ = s.Close()
		return nil, xdgportal.ErrNoStreams
	}
	if res.RestoreToken != "" {
		if err := b.Store.Save(res.RestoreToken); err != nil {
			b.logf("broker=portal restore_token_save_err=%v", err)
		}
	}

	b.logf("broker=portal granted node=%d size=%dx%d restored=%t", stream.NodeID, stream.Size[0], stream.Size[1], restore != "")
	return &portalGrant{session: s, stream: stream}, nil
}

func (b *PortalBroker) logf(format string, args ...any) {
	debug.Logf(b.Logf)(format, args...)
}

// portalGrant is a capture token backed by an open portal session.
type portalGrant struct {
	session portalSession
	stream  xdgportal.Stream

	invalid   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (g *portalGrant) Valid() bool { return !g.invalid.Load() }

// Invalidate closes the portal session. Only the first call does work.
func (g *portalGrant) Invalidate() error {
	g.closeOnce.Do(func() {
		g.invalid.Store(true)
		g.closeErr = g.session.Close()
	})
	return g.closeErr
}

func (g *portalGrant) OpenPipeWireRemote() (int, uint32, error) {
	if !g.Valid() {
		return -1, 0, capture.ErrTokenRejected
	}
	fd, err := g.session.OpenPipeWireRemote()
	if err != nil {
		return -1, 0, err
	}
	return fd, g.stream.NodeID, nil
}

// StreamSize is the size the portal reported for the granted stream.
func (g *portalGrant) StreamSize() (int, int) {
	return int(g.stream.Size[0]), int(g.stream.Size[1])
}
