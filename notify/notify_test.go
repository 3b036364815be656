package notify

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/encode"
	"go2tv.app/screenshot/internal/apis"
)

func TestFailureMessage(t *testing.T) {
	if got := FailureMessage(""); got != "Screenshot failed" {
		t.Fatalf("got %q", got)
	}
	if got := FailureMessage("permission denied"); got != "Screenshot failed\npermission denied" {
		t.Fatalf("got %q", got)
	}
}

func TestPathFromURI(t *testing.T) {
	p := filepath.Join(string(filepath.Separator), "tmp", "Screenshot_1.png")
	if got := PathFromURI("file://" + filepath.ToSlash(p)); got != p {
		t.Fatalf("got %q, want %q", got, p)
	}
	if got := PathFromURI("not a uri"); got != "not a uri" {
		t.Fatalf("got %q", got)
	}
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.Saved(context.Background(), "file:///tmp/Screenshot_1.jpg", image.NewRGBA(image.Rect(0, 0, 225, 400)), 440)
	term.Failed(context.Background(), FailureMessage("invalid frame dimensions"))

	out := buf.String()
	for _, want := range []string{"/tmp/Screenshot_1.jpg", "225x400", "440 dpi", "Screenshot failed", "invalid frame dimensions"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestMultiAndFunc(t *testing.T) {
	var saved, failed int
	f := Func{
		OnSaved:  func(context.Context, string, image.Image, int) { saved++ },
		OnFailed: func(context.Context, string) { failed++ },
	}
	m := Multi{f, nil, Discard{}, f}

	m.Saved(context.Background(), "file:///x", nil, 96)
	m.Failed(context.Background(), "boom")
	if saved != 2 || failed != 2 {
		t.Fatalf("saved=%d failed=%d", saved, failed)
	}
}

type recordedCall struct {
	target apis.Target
	method string
	args   []any
}

func recordingDesktop(calls *[]recordedCall) *Desktop {
	d := NewDesktop("screenshot")
	d.call = func(target apis.Target, method string, args ...any) (any, error) {
		*calls = append(*calls, recordedCall{target, method, args})
		return uint32(7), nil
	}
	return d
}

func TestDesktopSavedSendsImageHint(t *testing.T) {
	var calls []recordedCall
	d := recordingDesktop(&calls)

	preview := image.NewRGBA(image.Rect(0, 0, 3, 2))
	preview.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	d.Saved(context.Background(), "file:///tmp/Screenshot_9.png", preview, 96)

	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	c := calls[0]
	if c.target.Dest != notificationsDest || c.target.Path != notificationsPath || c.method != notifyMethod {
		t.Fatalf("unexpected call %+v", c)
	}
	if len(c.args) != 8 {
		t.Fatalf("Notify takes 8 args, got %d", len(c.args))
	}
	if body := c.args[4].(string); body != "/tmp/Screenshot_9.png" {
		t.Fatalf("body = %q", body)
	}
	hints := c.args[6].(map[string]dbus.Variant)
	v, ok := hints["image-data"]
	if !ok {
		t.Fatalf("missing image-data hint")
	}
	data := v.Value().(imageData)
	if data.Width != 3 || data.Height != 2 || data.Channels != 4 || len(data.Data) != 3*4*2 {
		t.Fatalf("image data = %+v", data)
	}
	if sig := v.Signature().String(); sig != "(iiibiiay)" {
		t.Fatalf("signature = %s", sig)
	}
}

func TestDesktopFailedIsTransient(t *testing.T) {
	var calls []recordedCall
	d := recordingDesktop(&calls)

	d.Failed(context.Background(), FailureMessage("surface unavailable"))

	c := calls[0]
	if c.args[3].(string) != "Screenshot failed" || c.args[4].(string) != "surface unavailable" {
		t.Fatalf("summary/body = %q / %q", c.args[3], c.args[4])
	}
	hints := c.args[6].(map[string]dbus.Variant)
	if transient, _ := hints["transient"].Value().(bool); !transient {
		t.Fatalf("failure notification should be transient")
	}
}

func TestDesktopSkipsCancelledContext(t *testing.T) {
	var calls []recordedCall
	d := recordingDesktop(&calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Failed(ctx, "x")
	if len(calls) != 0 {
		t.Fatalf("notification posted for cancelled owner")
	}
}

func TestPreviewHintCopiesNonRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(2, 2, 6, 5))
	data, ok := previewHint(gray, 0)
	if !ok || data.Width != 4 || data.Height != 3 || int(data.RowStride) != 16 {
		t.Fatalf("hint = %+v, %v", data, ok)
	}
	if _, ok := previewHint(nil, 128); ok {
		t.Fatalf("nil preview should produce no hint")
	}
}

func savedImageData(t *testing.T, d *Desktop, calls *[]recordedCall, preview image.Image, density int) imageData {
	t.Helper()
	*calls = nil
	d.Saved(context.Background(), "file:///tmp/Screenshot_1.png", preview, density)
	if len(*calls) != 1 {
		t.Fatalf("calls = %d", len(*calls))
	}
	hints := (*calls)[0].args[6].(map[string]dbus.Variant)
	v, ok := hints["image-data"]
	if !ok {
		t.Fatalf("missing image-data hint")
	}
	return v.Value().(imageData)
}

func TestDesktopImageScalesWithDensity(t *testing.T) {
	var calls []recordedCall
	d := recordingDesktop(&calls)
	preview := image.NewRGBA(image.Rect(0, 0, 300, 150))

	cases := []struct {
		density      int
		wantW, wantH int32
	}{
		{density: 96, wantW: 128, wantH: 64},
		{density: 192, wantW: 256, wantH: 128},
		{density: 0, wantW: 128, wantH: 64},
		{density: 440, wantW: 300, wantH: 150},
	}
	for _, tc := range cases {
		data := savedImageData(t, d, &calls, preview, tc.density)
		if data.Width != tc.wantW || data.Height != tc.wantH {
			t.Errorf("density %d: image %dx%d, want %dx%d", tc.density, data.Width, data.Height, tc.wantW, tc.wantH)
		}
		if len(data.Data) != int(data.RowStride*data.Height) || int(data.RowStride) != 4*int(data.Width) {
			t.Errorf("density %d: %d bytes for stride %d", tc.density, len(data.Data), data.RowStride)
		}
	}
}

func TestIconPixels(t *testing.T) {
	cases := []struct{ logical, density, want int }{
		{128, 96, 128},
		{128, 288, 384},
		{0, 96, DefaultIconSize},
		{64, -1, 64},
		{1, 10, 1},
	}
	for _, tc := range cases {
		if got := IconPixels(tc.logical, tc.density); got != tc.want {
			t.Errorf("IconPixels(%d, %d) = %d, want %d", tc.logical, tc.density, got, tc.want)
		}
	}
}

func TestDesktopImageFitsPreviewBound(t *testing.T) {
	enc := encode.New(t.TempDir())
	frame := capture.FrameFromImage(image.NewRGBA(image.Rect(0, 0, 1080, 1920)), nil)
	out := enc.Run(frame, "Screenshot_", encode.DefaultOptions())
	ok, isSuccess := out.(encode.Success)
	if !isSuccess {
		t.Fatalf("encode failed: %+v", out)
	}

	var calls []recordedCall
	d := recordingDesktop(&calls)
	d.IconSize = 4096
	data := savedImageData(t, d, &calls, ok.Preview, 440)
	if len(data.Data) > encode.DefaultMaxPreviewBytes {
		t.Fatalf("image-data carries %d bytes, bound %d", len(data.Data), encode.DefaultMaxPreviewBytes)
	}
}
