package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Pixel layouts a frame may carry. X variants have an undefined fourth byte.
const (
	PixelFormatBGRA = "BGRA"
	PixelFormatBGRX = "BGRX"
	PixelFormatRGBA = "RGBA"
	PixelFormatRGBX = "RGBX"
	PixelFormatRGB  = "RGB"
	PixelFormatBGR  = "BGR"
)

// BytesPerPixel reports the size of one pixel, or 0 for unknown formats.
func BytesPerPixel(pixelFormat string) int {
	switch pixelFormat {
	case PixelFormatBGRA, PixelFormatBGRX, PixelFormatRGBA, PixelFormatRGBX:
		return 4
	case PixelFormatRGB, PixelFormatBGR:
		return 3
	default:
		return 0
	}
}

var ErrFrameReleased = errors.New("frame already released")

// Frame is one raw pixel buffer. Exactly one owner holds it at a time and that
// owner calls Release when done.
type Frame struct {
	Width       int
	Height      int
	Stride      int
	PixelFormat string
	Pix         []byte
	CapturedAt  time.Time

	release     func()
	releaseOnce sync.Once
	released    atomic.Bool
}

// NewFrame wraps pix. release, when non-nil, runs on the first Release call.
func NewFrame(width, height, stride int, pixelFormat string, pix []byte, release func()) *Frame {
	return &Frame{
		Width:       width,
		Height:      height,
		Stride:      stride,
		PixelFormat: pixelFormat,
		Pix:         pix,
		CapturedAt:  time.Now(),
		release:     release,
	}
}

// FrameFromImage wraps an RGBA image without copying.
func FrameFromImage(img *image.RGBA, release func()) *Frame {
	if img == nil {
		return NewFrame(0, 0, 0, PixelFormatRGBA, nil, release)
	}
	b := img.Bounds()
	pix := img.Pix
	if b.Min != (image.Point{}) {
		pix = img.Pix[img.PixOffset(b.Min.X, b.Min.Y):]
	}
	return NewFrame(b.Dx(), b.Dy(), img.Stride, PixelFormatRGBA, pix, release)
}

// frameFromPacked builds a frame from a dequeued buffer, clamping the
// dimensions to what the buffer actually holds.
func frameFromPacked(data []byte, stride, width, height int, pixelFormat string) *Frame {
	bpp := BytesPerPixel(pixelFormat)
	if bpp == 0 {
		return NewFrame(0, 0, 0, pixelFormat, nil, nil)
	}
	if stride <= 0 {
		stride = width * bpp
	}
	if stride > 0 && stride < width*bpp {
		width = stride / bpp
	}
	if stride > 0 {
		if rows := len(data) / stride; rows < height {
			height = rows
		}
	}
	return NewFrame(max(width, 0), max(height, 0), stride, pixelFormat, data, nil)
}

// Release hands the buffer back. Only the first call has an effect.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.releaseOnce.Do(func() {
		f.released.Store(true)
		f.Pix = nil
		if f.release != nil {
			f.release()
		}
	})
}

func (f *Frame) Released() bool {
	return f == nil || f.released.Load()
}

// Image returns the frame as RGBA with opaque alpha. RGBA buffers are
// wrapped; every other layout is converted into a new image.
func (f *Frame) Image() (*image.RGBA, error) {
	if f == nil || f.Released() {
		return nil, ErrFrameReleased
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	bpp := BytesPerPixel(f.PixelFormat)
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported pixel format %q", f.PixelFormat)
	}
	row := f.Width * bpp
	if f.Stride < row || len(f.Pix) < f.Stride*(f.Height-1)+row {
		return nil, fmt.Errorf("frame buffer too small: %d bytes for %dx%d stride %d", len(f.Pix), f.Width, f.Height, f.Stride)
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.PixelFormat == PixelFormatRGBA {
		return &image.RGBA{Pix: f.Pix, Stride: f.Stride, Rect: rect}, nil
	}

	// Byte offsets of red and blue within one source pixel.
	r, b := 0, 2
	switch f.PixelFormat {
	case PixelFormatBGRA, PixelFormatBGRX, PixelFormatBGR:
		r, b = 2, 0
	}

	img := image.NewRGBA(rect)
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+row]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x, d := 0, 0; x < len(src); x, d = x+bpp, d+4 {
			dst[d] = src[x+r]
			dst[d+1] = src[x+1]
			dst[d+2] = src[x+b]
			dst[d+3] = 0xff
		}
	}
	return img, nil
}
