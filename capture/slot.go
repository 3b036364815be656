package capture

import (
	"sync"

	"go2tv.app/screenshot/internal/oneshot"
)

// slotSource is the shared FrameSource core: a one-slot buffer, a one-shot
// callback and an idempotent teardown of the backend surface.
type slotSource struct {
	name string

	mu        sync.Mutex
	pending   *Frame
	buffered  bool
	callback  *oneshot.Callback[*Frame]
	delivered bool
	closed    bool

	teardown  func() error
	closeOnce sync.Once
	closeErr  error
}

func newSlotSource(name string, teardown func() error) *slotSource {
	return &slotSource{name: name, teardown: teardown}
}

func (s *slotSource) OnFrame(fn func(*Frame)) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	if s.closed || s.callback != nil {
		s.mu.Unlock()
		return
	}
	cb := oneshot.New(fn)
	s.callback = cb
	pending, buffered := s.pending, s.buffered
	s.pending, s.buffered = nil, false
	s.mu.Unlock()

	// A buffered nil still has to reach the callback: it reports failure.
	if buffered && !cb.Fire(pending) {
		pending.Release()
	}
}

// deliver offers a frame from the platform callback context. Only the first
// frame is kept; later frames and frames arriving after Close are released
// immediately. A nil frame signals that acquisition failed.
func (s *slotSource) deliver(f *Frame) bool {
	s.mu.Lock()
	if s.closed || s.delivered {
		s.mu.Unlock()
		f.Release()
		return false
	}
	s.delivered = true
	cb := s.callback
	if cb == nil {
		s.pending, s.buffered = f, true
		s.mu.Unlock()
		debug.Printf("source=%s frame_buffered", s.name)
		return true
	}
	s.mu.Unlock()

	if !cb.Fire(f) {
		f.Release()
		return false
	}
	debug.Printf("source=%s frame_delivered", s.name)
	return true
}

func (s *slotSource) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.pending
		s.pending, s.buffered = nil, false
		cb := s.callback
		s.mu.Unlock()

		cb.Disarm()
		pending.Release()
		if s.teardown != nil {
			s.closeErr = s.teardown()
		}
		debug.Printf("source=%s closed err=%v", s.name, s.closeErr)
	})
	return s.closeErr
}
