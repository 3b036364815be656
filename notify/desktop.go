package notify

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/image/draw"

	"go2tv.app/screenshot/internal/apis"
	"go2tv.app/screenshot/internal/convert"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod        = notificationsDest + ".Notify"
	getServerInfoMethod = notificationsDest + ".GetServerInformation"

	urgencyLow    byte = 0
	urgencyNormal byte = 1

	// DefaultIconSize is the longest side of the image-data hint in logical
	// pixels. Physical pixels scale with densityDPI over BaseDPI.
	DefaultIconSize = 128
	BaseDPI         = 96
)

var notificationsTarget = apis.Target{Dest: notificationsDest, Path: notificationsPath}

// imageData is the (iiibiiay) image-data hint.
type imageData struct {
	Width         int32
	Height        int32
	RowStride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

// Desktop posts freedesktop notifications over the session bus.
type Desktop struct {
	AppName string
	// Timeout is the expiry for success notifications. Zero lets the server
	// decide.
	Timeout time.Duration
	// IconSize overrides DefaultIconSize.
	IconSize int
	Logf     func(format string, args ...any)

	call func(target apis.Target, method string, args ...any) (any, error)
}

func NewDesktop(appName string) *Desktop {
	return &Desktop{AppName: appName}
}

// DesktopAvailable reports whether a notification server answers.
func DesktopAvailable() bool {
	conn, err := dbus.SessionBus()
	if err != nil {
		return false
	}
	var name, vendor, version, protoVersion string
	err = conn.Object(notificationsDest, notificationsPath).Call(getServerInfoMethod, 0).Store(&name, &vendor, &version, &protoVersion)
	debug.Printf("notification_server name=%s version=%s err=%v", name, version, err)
	return err == nil
}

func (d *Desktop) Saved(ctx context.Context, fileURI string, preview image.Image, densityDPI int) {
	path := PathFromURI(fileURI)
	hints := map[string]dbus.Variant{
		"urgency":  convert.FromByte(urgencyNormal),
		"category": convert.FromString("transfer.complete"),
	}
	if data, ok := previewHint(preview, IconPixels(d.IconSize, densityDPI)); ok {
		hints["image-data"] = dbus.MakeVariant(data)
		d.logf("notify saved uri=%s density=%d image=%dx%d", fileURI, densityDPI, data.Width, data.Height)
	} else {
		d.logf("notify saved uri=%s density=%d image=none", fileURI, densityDPI)
	}
	d.post(ctx, "Screenshot saved", path, hints, d.Timeout)
}

func (d *Desktop) Failed(ctx context.Context, message string) {
	summary, body, _ := strings.Cut(message, "\n")
	hints := map[string]dbus.Variant{
		"urgency":   convert.FromByte(urgencyLow),
		"category":  convert.FromString("transfer.error"),
		"transient": convert.FromBool(true),
	}
	d.post(ctx, summary, body, hints, 5*time.Second)
}

func (d *Desktop) post(ctx context.Context, summary, body string, hints map[string]dbus.Variant, timeout time.Duration) {
	if ctx != nil && ctx.Err() != nil {
		d.logf("notify skipped err=%v", ctx.Err())
		return
	}
	call := d.call
	if call == nil {
		call = apis.CallTarget
	}

	expire := int32(-1)
	if timeout > 0 {
		expire = int32(timeout / time.Millisecond)
	}

	res, err := call(notificationsTarget, notifyMethod,
		d.AppName, uint32(0), "camera-photo", summary, body, []string{}, hints, expire)
	if err != nil {
		d.logf("notify err=%v", err)
		return
	}
	d.logf("notify posted id=%v summary=%q", res, summary)
}

func (d *Desktop) logf(format string, args ...any) {
	debug.Logf(d.Logf)(format, args...)
}

// IconPixels converts a logical icon size to physical pixels at densityDPI.
// Non-positive values fall back to DefaultIconSize and BaseDPI.
func IconPixels(logical, densityDPI int) int {
	if logical <= 0 {
		logical = DefaultIconSize
	}
	if densityDPI <= 0 {
		densityDPI = BaseDPI
	}
	return max(logical*densityDPI/BaseDPI, 1)
}

// previewHint builds the image-data hint, downscaling preview so its longer
// side is at most maxSide.
func previewHint(preview image.Image, maxSide int) (imageData, bool) {
	if preview == nil {
		return imageData{}, false
	}
	b := preview.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return imageData{}, false
	}
	w, h := b.Dx(), b.Dy()
	if longest := max(w, h); maxSide > 0 && longest > maxSide {
		w = max(w*maxSide/longest, 1)
		h = max(h*maxSide/longest, 1)
	}

	rgba, ok := preview.(*image.RGBA)
	switch {
	case w != b.Dx() || h != b.Dy():
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), preview, b, draw.Src, nil)
	case !ok || rgba.Rect.Min != (image.Point{}):
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), preview, b.Min, draw.Src)
	}
	return imageData{
		Width:         int32(w),
		Height:        int32(h),
		RowStride:     int32(rgba.Stride),
		HasAlpha:      true,
		BitsPerSample: 8,
		Channels:      4,
		Data:          rgba.Pix[:rgba.Stride*h],
	}, true
}
