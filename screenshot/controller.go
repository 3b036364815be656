package screenshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/encode"
	"go2tv.app/screenshot/notify"
	"go2tv.app/screenshot/screencast"
)

const DefaultNamePrefix = "Screenshot_"

// Encoder turns one frame into a saved file. Run must release the frame.
type Encoder interface {
	Run(frame *capture.Frame, namePrefix string, opts encode.Options) encode.Outcome
}

type Config struct {
	Broker  screencast.Broker
	Opener  capture.Opener
	Encoder Encoder
	// Notifier is called from its own goroutine, never from the looper.
	Notifier notify.Notifier

	// Looper is the owning context. Registry enforces one active session.
	Looper   *Looper
	Registry *Registry

	Geometry   capture.Geometry
	NamePrefix string
	// EncodeOptions is read when the frame arrives. Defaults to png/100.
	EncodeOptions func() encode.Options

	// FrameTimeout bounds AwaitingFrame. Zero waits indefinitely.
	FrameTimeout time.Duration
	// PermissionTimeout bounds AwaitingPermission. Zero waits indefinitely.
	PermissionTimeout time.Duration

	Logf func(format string, args ...any)
	// OnComplete runs once after the session reaches a terminal state and
	// the notifier has returned. It runs on the looper unless the looper has
	// already closed.
	OnComplete func(Result)
}

// Result is the terminal record of a session.
type Result struct {
	ID    uuid.UUID
	State State
	// Outcome is the encoder's outcome, nil when the session failed earlier.
	Outcome encode.Outcome
	// Reason is the human readable failure reason.
	Reason string
	Err    error
}

// Controller drives one capture session. It is created per request and
// discarded after Done is closed.
type Controller struct {
	cfg        Config
	id         uuid.UUID
	dispatcher *Dispatcher
	logf       func(format string, args ...any)

	state  atomic.Int32
	result atomic.Pointer[Result]
	done   chan struct{}

	// Fields below are owned by whoever holds mu; in practice the looper.
	mu            sync.Mutex
	ctx           context.Context
	token         capture.Token
	source        capture.Source
	prompted      bool
	reacquired    bool
	workerSpawned bool
	frameTimer    *time.Timer
	permTimer     *time.Timer
	afterUnlock   []func()
}

// NewController validates cfg and registers the session. It fails with
// ErrSessionActive while another session is registered.
func NewController(cfg Config) (*Controller, error) {
	switch {
	case cfg.Broker == nil:
		return nil, fmt.Errorf("%w: broker is required", ErrInvalidConfig)
	case cfg.Opener == nil:
		return nil, fmt.Errorf("%w: opener is required", ErrInvalidConfig)
	case cfg.Encoder == nil:
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidConfig)
	case cfg.Looper == nil:
		return nil, fmt.Errorf("%w: looper is required", ErrInvalidConfig)
	case cfg.Registry == nil:
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard{}
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}
	if cfg.EncodeOptions == nil {
		cfg.EncodeOptions = encode.DefaultOptions
	}

	c := &Controller{
		cfg:  cfg,
		logf: debug.Logf(cfg.Logf),
		done: make(chan struct{}),
	}
	id, err := cfg.Registry.Register(c)
	if err != nil {
		return nil, err
	}
	c.id = id
	c.dispatcher = NewDispatcher(id, cfg.Looper, cfg.Registry, cfg.Logf)
	return c, nil
}

func (c *Controller) ID() uuid.UUID { return c.id }

func (c *Controller) State() State { return State(c.state.Load()) }

// Done is closed when the session reaches a terminal state.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Result returns the terminal result. It is only meaningful after Done.
func (c *Controller) Result() Result {
	if r := c.result.Load(); r != nil {
		return *r
	}
	return Result{ID: c.id, State: c.State()}
}

// Start begins the session on the looper. Failures never escape: they end
// the session in StateFailed. Calls after the first are ignored.
func (c *Controller) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.post(func() { c.begin(ctx) }) {
		c.Abandon()
	}
}

// Abandon tears the session down as if its owner went away: the session is
// deregistered so a late WorkFinished is dropped, and its token and source
// are released. An encode already running is not interrupted. The notifier
// is not called.
func (c *Controller) Abandon() {
	c.cfg.Registry.Deregister(c.id)
	abandon := func() {
		c.finish(StateFailed, nil, ErrAbandoned.Error(), ErrAbandoned, false)
	}
	if !c.post(abandon) {
		c.locked(abandon)
	}
}

func (c *Controller) post(fn func()) bool {
	return c.cfg.Looper.Post(func() { c.locked(fn) })
}

func (c *Controller) locked(fn func()) {
	c.mu.Lock()
	fn()
	after := c.afterUnlock
	c.afterUnlock = nil
	c.mu.Unlock()
	for _, f := range after {
		f()
	}
}

func (c *Controller) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	c.logf("session=%s state=%s prev=%s", c.id, s, prev)
}

func (c *Controller) begin(ctx context.Context) {
	if c.State() != StateIdle {
		return
	}
	c.ctx = ctx
	c.setState(StateAwaitingPermission)

	if token := c.cfg.Broker.CreateToken(); validToken(token) {
		c.openSource(token)
		return
	}
	c.promptPermission()
}

func (c *Controller) promptPermission() {
	c.prompted = true
	if d := c.cfg.PermissionTimeout; d > 0 {
		c.permTimer = time.AfterFunc(d, func() {
			c.post(func() {
				if c.State() == StateAwaitingPermission {
					c.fail(ErrPermissionDenied, fmt.Errorf("no answer after %s", d))
				}
			})
		})
	}
	c.logf("session=%s permission_prompt", c.id)
	c.cfg.Broker.AcquireToken(c.ctx, &permissionListener{c: c})
}

func (c *Controller) permissionGranted() {
	if c.State() != StateAwaitingPermission {
		return
	}
	stopTimer(c.permTimer)
	token := c.cfg.Broker.CreateToken()
	if !validToken(token) {
		c.fail(ErrPermissionDenied, nil)
		return
	}
	c.openSource(token)
}

func (c *Controller) permissionDenied(err error) {
	if c.State() != StateAwaitingPermission {
		return
	}
	c.fail(ErrPermissionDenied, err)
}

func (c *Controller) openSource(token capture.Token) {
	c.token = token
	src, err := c.cfg.Opener.Open(token, c.cfg.Geometry)
	if err != nil {
		c.openFailed(err)
		return
	}

	c.source = src
	c.setState(StateAwaitingFrame)
	if d := c.cfg.FrameTimeout; d > 0 {
		c.frameTimer = time.AfterFunc(d, func() {
			c.post(func() {
				if c.State() == StateAwaitingFrame {
					c.fail(ErrFrameTimeout, nil)
				}
			})
		})
	}

	src.OnFrame(func(f *capture.Frame) {
		// Capture callback context: hand the frame to the looper.
		c.cfg.Looper.PostOrCancel(func() {
			c.locked(func() { c.frameReady(f) })
		}, f.Release)
	})
}

func (c *Controller) openFailed(err error) {
	if !errors.Is(err, capture.ErrTokenRejected) {
		c.fail(ErrSurfaceUnavailable, err)
		return
	}
	if c.reacquired {
		c.fail(ErrTokenRejected, err)
		return
	}

	c.reacquired = true
	c.logf("session=%s token_rejected reacquire err=%v", c.id, err)
	c.releaseToken()
	if token := c.cfg.Broker.CreateToken(); validToken(token) {
		c.openSource(token)
		return
	}
	if c.prompted {
		c.fail(ErrTokenRejected, err)
		return
	}
	c.promptPermission()
}

func (c *Controller) frameReady(f *capture.Frame) {
	if c.State() != StateAwaitingFrame {
		f.Release()
		return
	}
	stopTimer(c.frameTimer)
	c.closeSource()

	if f == nil {
		c.fail(ErrFrameUnavailable, nil)
		return
	}
	if f.Width <= 0 || f.Height <= 0 {
		c.logf("session=%s invalid_frame size=%dx%d", c.id, f.Width, f.Height)
		f.Release()
		c.fail(ErrZeroDimensionFrame, fmt.Errorf("frame size %dx%d", f.Width, f.Height))
		return
	}

	c.setState(StateEncoding)
	opts := c.cfg.EncodeOptions()
	prefix := c.cfg.NamePrefix
	encoder := c.cfg.Encoder
	c.dispatcher.BeginWork(func() any {
		return encoder.Run(f, prefix, opts)
	}, f.Release)
}

// launchWorker runs on the looper when BeginWork is processed.
func (c *Controller) launchWorker(d *Dispatcher, job func() any, drop func()) {
	c.locked(func() {
		if c.workerSpawned || c.State() != StateEncoding {
			callIfSet(drop)
			return
		}
		c.workerSpawned = true
		c.logf("session=%s worker_start", c.id)
		go func() {
			d.WorkFinished(runJob(job))
		}()
	})
}

func runJob(job func() any) (payload any) {
	defer func() {
		if r := recover(); r != nil {
			payload = encode.Failure{Reason: "encoder crashed", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return job()
}

// workFinished runs on the looper when WorkFinished is processed.
func (c *Controller) workFinished(payload any) {
	c.locked(func() {
		if c.State() != StateEncoding {
			return
		}
		switch out := payload.(type) {
		case encode.Success:
			c.finish(StateSucceeded, out, "", nil, true)
		case encode.Failure:
			err := error(out)
			c.finish(StateFailed, out, out.Reason, fmt.Errorf("%w: %w", ErrEncodeFailure, err), true)
		default:
			c.fail(ErrOutcomeCast, fmt.Errorf("payload %T", payload))
		}
	})
}

func (c *Controller) fail(kind, cause error) {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	c.finish(StateFailed, nil, kind.Error(), err, true)
}

// finish moves to a terminal state once, releasing the token and source.
// After the lock is dropped the notifier runs on its own goroutine; OnComplete
// and Done follow once it returns.
func (c *Controller) finish(state State, outcome encode.Outcome, reason string, err error, notifyOwner bool) {
	if c.State().Terminal() {
		return
	}
	stopTimer(c.permTimer)
	stopTimer(c.frameTimer)
	c.releaseToken()
	c.closeSource()
	c.setState(state)

	res := &Result{ID: c.id, State: state, Outcome: outcome, Reason: reason, Err: err}
	c.result.Store(res)
	c.cfg.Registry.Deregister(c.id)
	c.logf("session=%s finished state=%s reason=%q err=%v", c.id, state, reason, err)

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	notifier := c.cfg.Notifier
	density := c.cfg.Geometry.DensityDPI
	onComplete := c.cfg.OnComplete
	looper := c.cfg.Looper
	c.afterUnlock = append(c.afterUnlock, func() {
		complete := func() {
			if onComplete != nil {
				onComplete(*res)
			}
			close(c.done)
		}
		if !notifyOwner {
			complete()
			return
		}
		// The notifier may wait on the session bus, so it runs off the
		// looper. Completion goes back to the looper once it returns.
		go func() {
			if ok, isSuccess := outcome.(encode.Success); isSuccess {
				notifier.Saved(ctx, ok.URI, ok.Preview, density)
			} else {
				notifier.Failed(ctx, notify.FailureMessage(reason))
			}
			looper.PostOrCancel(complete, complete)
		}()
	})
}

func (c *Controller) releaseToken() {
	if c.token == nil {
		return
	}
	if err := c.token.Invalidate(); err != nil {
		c.logf("session=%s token_invalidate_err=%v", c.id, err)
	}
	c.token = nil
}

func (c *Controller) closeSource() {
	if c.source == nil {
		return
	}
	if err := c.source.Close(); err != nil {
		c.logf("session=%s source_close_err=%v", c.id, err)
	}
}

func validToken(t capture.Token) bool {
	return t != nil && t.Valid()
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// permissionListener forwards the broker's first answer to the looper.
type permissionListener struct {
	c        *Controller
	answered atomic.Bool
}

func (l *permissionListener) OnGranted() {
	if l.answered.CompareAndSwap(false, true) {
		l.c.post(l.c.permissionGranted)
	}
}

func (l *permissionListener) OnDenied(err error) {
	if l.answered.CompareAndSwap(false, true) {
		l.c.post(func() { l.c.permissionDenied(err) })
	}
}
