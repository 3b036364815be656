package encode

import (
	"fmt"
	"strings"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

const (
	DefaultFormat  = FormatPNG
	DefaultQuality = 100
)

// ParseFormat accepts jpeg, jpg, png and webp in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatWebP:
		return "webp"
	default:
		return "png"
	}
}

func (f Format) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Options is the compression preference read when a frame is encoded.
type Options struct {
	Format  Format
	Quality int
}

func DefaultOptions() Options {
	return Options{Format: DefaultFormat, Quality: DefaultQuality}
}

func (o Options) normalized() Options {
	f, err := ParseFormat(string(o.Format))
	if err != nil {
		f = DefaultFormat
	}
	o.Format = f
	o.Quality = min(max(o.Quality, 0), 100)
	return o
}
