package screenshot

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/encode"
	"go2tv.app/screenshot/notify"
	"go2tv.app/screenshot/screencast"
)

// fakeToken counts invalidations.
type fakeToken struct {
	invalidated atomic.Int32
}

func (t *fakeToken) Valid() bool { return t.invalidated.Load() == 0 }

func (t *fakeToken) Invalidate() error {
	t.invalidated.Add(1)
	return nil
}

// fakeBroker hands out tokens from a script. grantOnAcquire decides the
// AcquireToken answer; a nil *bool never answers.
type fakeBroker struct {
	mu             sync.Mutex
	createResults  []bool
	creates        int
	acquires       int
	grantOnAcquire *bool
	issued         []*fakeToken
}

func (b *fakeBroker) CreateToken() capture.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.creates
	b.creates++
	if i >= len(b.createResults) || !b.createResults[i] {
		return nil
	}
	tok := &fakeToken{}
	b.issued = append(b.issued, tok)
	return tok
}

func (b *fakeBroker) AcquireToken(_ context.Context, l screencast.Listener) {
	b.mu.Lock()
	b.acquires++
	grant := b.grantOnAcquire
	b.mu.Unlock()
	if grant == nil {
		return
	}
	go func() {
		if *grant {
			l.OnGranted()
		} else {
			l.OnDenied(screencast.ErrDenied)
		}
	}()
}

func (b *fakeBroker) counts() (creates, acquires int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creates, b.acquires
}

func (b *fakeBroker) tokens() []*fakeToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeToken(nil), b.issued...)
}

func ptr[T any](v T) *T { return &v }

// fakeSource hands frames to the registered callback on demand. It is not
// one-shot so tests can check the controller ignores extra frames.
type fakeSource struct {
	mu         sync.Mutex
	cb         func(*capture.Frame)
	closes     atomic.Int32
	onRegister func(s *fakeSource)

	// Frames emitted before registration wait here, nil included.
	early []*capture.Frame
}

func (s *fakeSource) OnFrame(fn func(*capture.Frame)) {
	s.mu.Lock()
	s.cb = fn
	hook := s.onRegister
	early := s.early
	s.early = nil
	s.mu.Unlock()
	for _, f := range early {
		fn(f)
	}
	if hook != nil {
		hook(s)
	}
}

func (s *fakeSource) emit(f *capture.Frame) {
	s.mu.Lock()
	cb := s.cb
	if cb == nil {
		s.early = append(s.early, f)
	}
	s.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

func (s *fakeSource) Close() error {
	s.closes.Add(1)
	return nil
}

// fakeOpener returns scripted errors before handing out sources.
type fakeOpener struct {
	mu       sync.Mutex
	errs     []error
	opens    int
	sources  []*fakeSource
	geometry capture.Geometry
	onFrame  func(s *fakeSource)
	// onOpen runs before the source is returned, ahead of registration.
	onOpen func(s *fakeSource)
}

func (o *fakeOpener) Open(token capture.Token, g capture.Geometry) (capture.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.opens
	o.opens++
	o.geometry = g
	if i < len(o.errs) && o.errs[i] != nil {
		return nil, o.errs[i]
	}
	if !token.Valid() {
		return nil, capture.ErrTokenRejected
	}
	s := &fakeSource{onRegister: o.onFrame}
	o.sources = append(o.sources, s)
	if o.onOpen != nil {
		o.onOpen(s)
	}
	return s, nil
}

func (o *fakeOpener) opened() (int, []*fakeSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens, append([]*fakeSource(nil), o.sources...)
}

func deliverFrame(w, h int, released *atomic.Int32) func(*fakeSource) {
	return func(s *fakeSource) {
		img := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
		f := capture.NewFrame(w, h, max(w, 0)*4, capture.PixelFormatRGBA, img.Pix, func() {
			if released != nil {
				released.Add(1)
			}
		})
		go s.emit(f)
	}
}

// encoderFunc adapts a func to Encoder.
type encoderFunc func(*capture.Frame, string, encode.Options) encode.Outcome

func (f encoderFunc) Run(frame *capture.Frame, prefix string, opts encode.Options) encode.Outcome {
	return f(frame, prefix, opts)
}

type notification struct {
	saved   bool
	uri     string
	preview image.Image
	density int
	message string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *recordingNotifier) Saved(_ context.Context, uri string, preview image.Image, density int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{saved: true, uri: uri, preview: preview, density: density})
}

func (n *recordingNotifier) Failed(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{message: message})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

var _ notify.Notifier = (*recordingNotifier)(nil)

// blockingNotifier holds every call until release is closed.
type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
}

func (n *blockingNotifier) wait() {
	n.once.Do(func() { close(n.entered) })
	<-n.release
}

func (n *blockingNotifier) Saved(context.Context, string, image.Image, int) { n.wait() }

func (n *blockingNotifier) Failed(context.Context, string) { n.wait() }

type harness struct {
	t        *testing.T
	looper   *Looper
	registry *Registry
	broker   *fakeBroker
	opener   *fakeOpener
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		looper:   NewLooper(),
		registry: NewRegistry(),
		broker:   &fakeBroker{createResults: []bool{true, true, true}},
		opener:   &fakeOpener{},
		notifier: &recordingNotifier{},
	}
	t.Cleanup(h.looper.Close)
	return h
}

func (h *harness) config(enc Encoder) Config {
	return Config{
		Broker:     h.broker,
		Opener:     h.opener,
		Encoder:    enc,
		Notifier:   h.notifier,
		Looper:     h.looper,
		Registry:   h.registry,
		Geometry:   capture.Geometry{Width: 1080, Height: 1920, DensityDPI: 440},
		NamePrefix: DefaultNamePrefix,
	}
}

func (h *harness) run(cfg Config) Result {
	h.t.Helper()
	c, err := NewController(cfg)
	if err != nil {
		h.t.Fatalf("NewController: %v", err)
	}
	c.Start(context.Background())
	return waitDone(h.t, c)
}

func waitDone(t *testing.T, c *Controller) Result {
	t.Helper()
	select {
	case <-c.Done():
		return c.Result()
	case <-time.After(5 * time.Second):
		t.Fatalf("session stuck in state %s", c.State())
		return Result{}
	}
}

func failingEncoder(t *testing.T) Encoder {
	return encoderFunc(func(f *capture.Frame, _ string, _ encode.Options) encode.Outcome {
		t.Errorf("encoder must not run")
		f.Release()
		return encode.Failure{Reason: "unexpected"}
	})
}

func requireFailure(t *testing.T, res Result, kind error) {
	t.Helper()
	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if !errors.Is(res.Err, kind) {
		t.Fatalf("err = %v, want %v", res.Err, kind)
	}
	if res.Reason != kind.Error() {
		t.Fatalf("reason = %q, want %q", res.Reason, kind.Error())
	}
}
