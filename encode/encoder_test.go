package encode

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"go2tv.app/screenshot/capture"
)

func testFrame(w, h int, release func()) *capture.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return capture.FrameFromImage(img, release)
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestRunWritesJPEGWithPreview(t *testing.T) {
	dir := t.TempDir()
	enc := New(dir)
	enc.Now = fixedClock(1700000000123)

	released := 0
	out := enc.Run(testFrame(1080, 1920, func() { released++ }), "Screenshot_", Options{Format: FormatJPEG, Quality: 90})

	ok, isSuccess := out.(Success)
	if !isSuccess {
		t.Fatalf("expected Success, got %#v", out)
	}
	want := filepath.Join(dir, "Screenshot_1700000000123.jpg")
	if ok.Path != want {
		t.Fatalf("path = %q, want %q", ok.Path, want)
	}
	if !strings.HasPrefix(ok.URI, "file://") || !strings.HasSuffix(ok.URI, "Screenshot_1700000000123.jpg") {
		t.Fatalf("uri = %q", ok.URI)
	}
	if released != 1 {
		t.Fatalf("frame released %d times", released)
	}

	data, err := os.ReadFile(ok.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if cfg.Width != 1080 || cfg.Height != 1920 {
		t.Fatalf("output size %dx%d", cfg.Width, cfg.Height)
	}

	if ok.Preview == nil {
		t.Fatalf("expected preview")
	}
	// 225x400 would be 360000 bytes of RGBA, over the bound.
	b := ok.Preview.Bounds()
	if b.Dx() != 182 || b.Dy() != 324 {
		t.Fatalf("preview size %dx%d, want 182x324", b.Dx(), b.Dy())
	}
	if n := PreviewBytes(b.Dx(), b.Dy()); n > DefaultMaxPreviewBytes {
		t.Fatalf("preview is %d bytes, bound %d", n, DefaultMaxPreviewBytes)
	}
}

func TestRunWritesPNG(t *testing.T) {
	dir := t.TempDir()
	enc := New(dir)
	enc.Now = fixedClock(42)

	out := enc.Run(testFrame(8, 4, nil), "shot-", Options{Format: FormatPNG, Quality: 100})
	ok, isSuccess := out.(Success)
	if !isSuccess {
		t.Fatalf("expected Success, got %#v", out)
	}
	if filepath.Base(ok.Path) != "shot-42.png" {
		t.Fatalf("name = %q", filepath.Base(ok.Path))
	}
	f, err := os.Open(ok.Path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("decode png: %v", err)
	}
	// Small frames keep their size.
	if b := ok.Preview.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("preview size %v", b)
	}
}

func TestRunDoesNotOverwriteSameMillisecond(t *testing.T) {
	dir := t.TempDir()
	enc := New(dir)
	enc.Now = fixedClock(7)

	first := enc.Run(testFrame(2, 2, nil), "s_", Options{Format: FormatPNG, Quality: 100}).(Success)
	second := enc.Run(testFrame(2, 2, nil), "s_", Options{Format: FormatPNG, Quality: 100}).(Success)

	if first.Path == second.Path {
		t.Fatalf("second capture overwrote %q", first.Path)
	}
	if filepath.Base(second.Path) != "s_7_1.png" {
		t.Fatalf("second name = %q", filepath.Base(second.Path))
	}
}

func TestRunFailureReleasesFrame(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	released := 0
	enc := New(filepath.Join(blocker, "Screenshots"))
	out := enc.Run(testFrame(4, 4, func() { released++ }), "Screenshot_", DefaultOptions())

	fail, isFailure := out.(Failure)
	if !isFailure {
		t.Fatalf("expected Failure, got %#v", out)
	}
	if fail.Reason == "" || fail.Err == nil {
		t.Fatalf("failure without reason: %#v", fail)
	}
	if released != 1 {
		t.Fatalf("frame released %d times", released)
	}
}

func TestRunNilAndReleasedFrames(t *testing.T) {
	enc := New(t.TempDir())

	out := enc.Run(nil, "x", DefaultOptions())
	if fail, ok := out.(Failure); !ok || !errors.Is(fail, ErrNoFrame) {
		t.Fatalf("nil frame: %#v", out)
	}

	f := testFrame(2, 2, nil)
	f.Release()
	out = enc.Run(f, "x", DefaultOptions())
	if fail, ok := out.(Failure); !ok || !errors.Is(fail, capture.ErrFrameReleased) {
		t.Fatalf("released frame: %#v", out)
	}
}

func TestRunRequiresDir(t *testing.T) {
	out := (&Encoder{}).Run(testFrame(1, 1, nil), "x", DefaultOptions())
	if fail, ok := out.(Failure); !ok || !errors.Is(fail, ErrOutputDirMissing) {
		t.Fatalf("expected ErrOutputDirMissing, got %#v", out)
	}
}

func TestPreviewSize(t *testing.T) {
	cases := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{1080, 1920, 400, 225, 400},
		{1920, 1080, 400, 400, 225},
		{300, 200, 400, 300, 200},
		{4000, 1, 400, 400, 1},
		{0, 10, 400, 0, 0},
	}
	for _, tc := range cases {
		w, h := PreviewSize(tc.w, tc.h, tc.max)
		if w != tc.wantW || h != tc.wantH {
			t.Errorf("PreviewSize(%d,%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, tc.max, w, h, tc.wantW, tc.wantH)
		}
	}
}

func TestPreviewShrinksToByteBound(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 800))

	enc := New(t.TempDir())
	enc.MaxPreviewBytes = 32 << 10

	preview := enc.preview(img)
	if preview == nil {
		t.Fatalf("expected preview")
	}
	b := preview.Bounds()
	if n := PreviewBytes(b.Dx(), b.Dy()); n > enc.MaxPreviewBytes {
		t.Fatalf("preview %v is %d bytes, bound %d", b, n, enc.MaxPreviewBytes)
	}
	if max(b.Dx(), b.Dy()) < DefaultMinPreviewSize {
		t.Fatalf("preview below minimum: %v", b)
	}
	if rgba, ok := preview.(*image.RGBA); !ok || len(rgba.Pix) > enc.MaxPreviewBytes {
		t.Fatalf("preview pixels exceed bound")
	}
}

func TestPreviewDroppedWhenMinimumTooLarge(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 800))

	enc := New(t.TempDir())
	enc.MaxPreviewBytes = 8 << 10

	if preview := enc.preview(img); preview != nil {
		t.Fatalf("expected no preview, got %v", preview.Bounds())
	}
}

func TestPreviewFitsBoundProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(1, 1200).Draw(rt, "width")
		h := rapid.IntRange(1, 1200).Draw(rt, "height")
		maxBytes := rapid.IntRange(1, 1<<20).Draw(rt, "maxBytes")

		enc := &Encoder{MaxPreviewBytes: maxBytes}
		preview := enc.preview(image.NewRGBA(image.Rect(0, 0, w, h)))
		if preview == nil {
			return
		}
		b := preview.Bounds()
		if n := PreviewBytes(b.Dx(), b.Dy()); n > maxBytes {
			rt.Fatalf("%dx%d preview of %dx%d is %d bytes, bound %d", b.Dx(), b.Dy(), w, h, n, maxBytes)
		}
		if b.Dx() > w || b.Dy() > h {
			rt.Fatalf("preview %v upscaled %dx%d", b, w, h)
		}
	})
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"jpeg": FormatJPEG, "JPG": FormatJPEG, " png ": FormatPNG, "webp": FormatWebP}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("bmp"); err == nil {
		t.Errorf("expected error for bmp")
	}
	if FormatJPEG.Extension() != "jpg" || FormatWebP.Extension() != "webp" || Format("").Extension() != "png" {
		t.Errorf("unexpected extensions")
	}
}

func TestOptionsNormalized(t *testing.T) {
	got := Options{Format: "JPG", Quality: 140}.normalized()
	if got.Format != FormatJPEG || got.Quality != 100 {
		t.Fatalf("normalized = %+v", got)
	}
	got = Options{Format: "tiff", Quality: -3}.normalized()
	if got.Format != DefaultFormat || got.Quality != 0 {
		t.Fatalf("normalized = %+v", got)
	}
}
