package capture

import (
	"errors"
	"image"
	"testing"
	"time"
)

func stubDisplays(t *testing.T, n int, bounds image.Rectangle, grab func(int) (*image.RGBA, error)) {
	t.Helper()
	oldNum, oldBounds, oldCapture := numActiveDisplays, displayBounds, captureDisplay
	numActiveDisplays = func() int { return n }
	displayBounds = func(int) image.Rectangle { return bounds }
	captureDisplay = grab
	t.Cleanup(func() {
		numActiveDisplays, displayBounds, captureDisplay = oldNum, oldBounds, oldCapture
	})
}

func TestDetectGeometry(t *testing.T) {
	stubDisplays(t, 1, image.Rect(0, 0, 1080, 1920), nil)

	g, err := DetectGeometry(0, 440)
	if err != nil {
		t.Fatalf("DetectGeometry: %v", err)
	}
	if g != (Geometry{Width: 1080, Height: 1920, DensityDPI: 440}) {
		t.Fatalf("geometry = %+v", g)
	}

	g, _ = DetectGeometry(0, 0)
	if g.DensityDPI != defaultDensityDPI {
		t.Fatalf("density fallback = %d", g.DensityDPI)
	}

	if _, err := DetectGeometry(3, 96); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestDetectGeometryWithoutDisplays(t *testing.T) {
	stubDisplays(t, 0, image.Rectangle{}, nil)
	if _, err := DetectGeometry(0, 96); !errors.Is(err, ErrSurfaceUnavailable) {
		t.Fatalf("expected ErrSurfaceUnavailable, got %v", err)
	}
}

func TestOpenDisplayDeliversOneFrame(t *testing.T) {
	stubDisplays(t, 1, image.Rect(0, 0, 4, 2), func(int) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 2)), nil
	})

	src, err := Open(NewToken(), Geometry{Width: 4, Height: 2, DensityDPI: 96}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	got := make(chan *Frame, 2)
	src.OnFrame(func(f *Frame) { got <- f })

	select {
	case f := <-got:
		if f == nil || f.Width != 4 || f.Height != 2 {
			t.Fatalf("unexpected frame %+v", f)
		}
		f.Release()
	case <-time.After(time.Second):
		t.Fatalf("no frame delivered")
	}
}

func TestOpenDisplayCaptureFailureDeliversNil(t *testing.T) {
	stubDisplays(t, 1, image.Rect(0, 0, 4, 2), func(int) (*image.RGBA, error) {
		return nil, errors.New("x11 gone")
	})

	src, err := Open(NewToken(), Geometry{Width: 4, Height: 2}, &Options{Backend: BackendDisplay})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	got := make(chan *Frame, 1)
	src.OnFrame(func(f *Frame) { got <- f })
	select {
	case f := <-got:
		if f != nil {
			t.Fatalf("expected nil frame on capture failure")
		}
	case <-time.After(time.Second):
		t.Fatalf("no callback")
	}
}

func TestOpenDisplayFailureBeforeRegistration(t *testing.T) {
	stubDisplays(t, 1, image.Rect(0, 0, 4, 2), func(int) (*image.RGBA, error) {
		return nil, errors.New("x11 gone")
	})

	src, err := Open(NewToken(), Geometry{Width: 4, Height: 2}, &Options{Backend: BackendDisplay})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	slot := src.(*slotSource)
	deadline := time.Now().Add(time.Second)
	for {
		slot.mu.Lock()
		failed := slot.buffered
		slot.mu.Unlock()
		if failed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("capture failure was never recorded")
		}
		time.Sleep(time.Millisecond)
	}

	got := make(chan *Frame, 1)
	src.OnFrame(func(f *Frame) { got <- f })
	select {
	case f := <-got:
		if f != nil {
			t.Fatalf("expected nil frame on capture failure")
		}
	case <-time.After(time.Second):
		t.Fatalf("failure recorded before registration was lost")
	}
}

func TestOpenRejectsInvalidToken(t *testing.T) {
	tok := NewToken()
	_ = tok.Invalidate()

	if _, err := Open(tok, Geometry{Width: 1, Height: 1}, nil); !errors.Is(err, ErrTokenRejected) {
		t.Fatalf("expected ErrTokenRejected, got %v", err)
	}
	if _, err := Open(nil, Geometry{Width: 1, Height: 1}, nil); !errors.Is(err, ErrTokenRejected) {
		t.Fatalf("expected ErrTokenRejected for nil token, got %v", err)
	}
}

func TestOpenWithoutDisplaysIsSurfaceUnavailable(t *testing.T) {
	stubDisplays(t, 0, image.Rectangle{}, nil)
	if _, err := Open(NewToken(), Geometry{Width: 1, Height: 1}, nil); !errors.Is(err, ErrSurfaceUnavailable) {
		t.Fatalf("expected ErrSurfaceUnavailable, got %v", err)
	}
	if _, err := Open(NewToken(), Geometry{}, nil); !errors.Is(err, ErrSurfaceUnavailable) {
		t.Fatalf("expected ErrSurfaceUnavailable for empty geometry, got %v", err)
	}
}
