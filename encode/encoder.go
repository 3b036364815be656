package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/chai2010/webp"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/internal/debuglog"
	"go2tv.app/screenshot/internal/fsx"
)

const (
	DefaultMaxPreviewSize  = 400
	DefaultMinPreviewSize  = 50
	DefaultMaxPreviewBytes = 256 << 10

	// Same-millisecond captures get a numeric suffix instead of overwriting.
	maxNameAttempts = 16
)

var (
	ErrNoFrame          = errors.New("no frame to encode")
	ErrOutputDirMissing = errors.New("output directory not set")
)

var dbg = debuglog.New("encode")

// Encoder writes one frame per Run into Dir. The zero value is not usable;
// Dir must be set.
type Encoder struct {
	Dir string
	// Now is the clock used for file names. Defaults to time.Now.
	Now func() time.Time

	// Preview bounds: the longest side starts at MaxPreviewSize and shrinks
	// towards MinPreviewSize until the raw RGBA fits in MaxPreviewBytes.
	MaxPreviewSize  int
	MinPreviewSize  int
	MaxPreviewBytes int

	Logf func(format string, args ...any)
}

func New(dir string) *Encoder {
	return &Encoder{
		Dir:             dir,
		MaxPreviewSize:  DefaultMaxPreviewSize,
		MinPreviewSize:  DefaultMinPreviewSize,
		MaxPreviewBytes: DefaultMaxPreviewBytes,
	}
}

// Run encodes frame into Dir as <namePrefix><unix-millis>.<ext> and builds a
// preview. The frame is released before Run returns, whatever the result.
// Errors and panics come back as Failure.
func (e *Encoder) Run(frame *capture.Frame, namePrefix string, opts Options) (out Outcome) {
	logf := dbg.Logf(e.Logf)
	defer frame.Release()
	defer func() {
		if r := recover(); r != nil {
			logf("encode panic=%v\n%s", r, debug.Stack())
			out = Failure{Reason: "encoder crashed", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if frame == nil {
		return Failure{Reason: "could not acquire image", Err: ErrNoFrame}
	}
	if e.Dir == "" {
		return Failure{Reason: "no output directory", Err: ErrOutputDirMissing}
	}
	opts = opts.normalized()

	img, err := frame.Image()
	if err != nil {
		return Failure{Reason: "could not read frame", Err: err}
	}

	var buf bytes.Buffer
	if err := encodeImage(&buf, img, opts); err != nil {
		return Failure{Reason: "failed to compress image", Err: err}
	}

	dir, err := filepath.Abs(e.Dir)
	if err != nil {
		return Failure{Reason: "invalid output directory", Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Failure{Reason: "could not create output directory", Err: err}
	}

	name, err := e.write(dir, namePrefix, opts.Format.Extension(), buf.Bytes())
	if err != nil {
		return Failure{Reason: "failed to write file", Err: err}
	}
	path := filepath.Join(dir, name)
	logf("saved path=%s format=%s quality=%d bytes=%d size=%dx%d", path, opts.Format, opts.Quality, buf.Len(), frame.Width, frame.Height)

	preview := e.preview(img)
	// img may alias the frame buffer.
	frame.Release()

	return Success{
		Path:    path,
		URI:     FileURI(path),
		Format:  opts.Format,
		Preview: preview,
	}
}

func (e *Encoder) write(dir, prefix, ext string, data []byte) (string, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	stamp := strconv.FormatInt(now().UnixMilli(), 10)

	for i := 0; i < maxNameAttempts; i++ {
		name := prefix + stamp + "." + ext
		if i > 0 {
			name = prefix + stamp + "_" + strconv.Itoa(i) + "." + ext
		}
		err := fsx.WriteFileAtomicNoOverwrite(dir, name, data)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return name, err
	}
	return "", fmt.Errorf("%w: %s%s.%s", os.ErrExist, prefix, stamp, ext)
}

func encodeImage(w io.Writer, img image.Image, opts Options) error {
	switch opts.Format {
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: max(opts.Quality, 1)})
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{
			Lossless: opts.Quality >= 100,
			Quality:  float32(opts.Quality),
		})
	default:
		// PNG is lossless; quality only trades size for speed.
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if opts.Quality < 50 {
			enc.CompressionLevel = png.BestSpeed
		}
		return enc.Encode(w, img)
	}
}

// FileURI returns path as a file:// URI.
func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
