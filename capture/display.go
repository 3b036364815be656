package capture

import (
	"fmt"
	"sync"

	"github.com/kbinani/screenshot"
)

// Swapped in tests.
var (
	numActiveDisplays = screenshot.NumActiveDisplays
	displayBounds     = screenshot.GetDisplayBounds
	captureDisplay    = screenshot.CaptureDisplay
)

const defaultDensityDPI = 96

// DetectGeometry snapshots the size of display index. A non-positive density
// falls back to 96 dpi.
func DetectGeometry(index, densityDPI int) (Geometry, error) {
	n := numActiveDisplays()
	if n <= 0 {
		return Geometry{}, fmt.Errorf("%w: no active displays", ErrSurfaceUnavailable)
	}
	if index < 0 || index >= n {
		return Geometry{}, fmt.Errorf("%w: display %d out of range (displays=%d)", ErrInvalidOptions, index, n)
	}
	if densityDPI <= 0 {
		densityDPI = defaultDensityDPI
	}
	b := displayBounds(index)
	return Geometry{Width: b.Dx(), Height: b.Dy(), DensityDPI: densityDPI}, nil
}

// openDisplay grabs one frame of a monitor on a dedicated goroutine, which
// plays the role of the platform capture callback context.
func openDisplay(geometry Geometry, index int) (Source, error) {
	n := numActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrSurfaceUnavailable)
	}
	if index >= n {
		return nil, fmt.Errorf("%w: display %d out of range (displays=%d)", ErrSurfaceUnavailable, index, n)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	src := newSlotSource("display", func() error {
		close(done)
		wg.Wait()
		return nil
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-done:
			return
		default:
		}

		img, err := captureDisplay(index)
		if err != nil {
			debug.Printf("source=display index=%d capture_err=%v", index, err)
			src.deliver(nil)
			return
		}
		if b := img.Bounds(); b.Dx() != geometry.Width || b.Dy() != geometry.Height {
			debug.Printf("source=display index=%d size_mismatch got=%dx%d want=%s", index, b.Dx(), b.Dy(), geometry)
		}
		src.deliver(FrameFromImage(img, nil))
	}()

	return src, nil
}
