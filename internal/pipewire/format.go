package pipewire

import "fmt"

// VideoFormat mirrors enum spa_video_format for the raw formats we negotiate.
type VideoFormat uint32

const (
	FormatUnknown VideoFormat = 0
	FormatRGBx    VideoFormat = 7
	FormatBGRx    VideoFormat = 8
	FormatRGBA    VideoFormat = 11
	FormatBGRA    VideoFormat = 12
	FormatRGB     VideoFormat = 15
	FormatBGR     VideoFormat = 16
)

func (f VideoFormat) String() string {
	switch f {
	case FormatUnknown:
		return "unknown"
	case FormatRGBx:
		return "RGBx"
	case FormatBGRx:
		return "BGRx"
	case FormatRGBA:
		return "RGBA"
	case FormatBGRA:
		return "BGRA"
	case FormatRGB:
		return "RGB"
	case FormatBGR:
		return "BGR"
	default:
		return fmt.Sprintf("spa_video_format(%d)", uint32(f))
	}
}

// Buffer is a copy of the first dequeued video buffer. Width, Height and
// Format are what the stream negotiated; they are zero when negotiation
// was never reported.
type Buffer struct {
	Data   []byte
	Stride int
	Width  int
	Height int
	Format VideoFormat
}

// FrameHandler receives the grabbed buffer. It runs on the PipeWire loop
// goroutine and must not call Close.
type FrameHandler func(Buffer)

// ErrorHandler receives stream failures. Same constraints as FrameHandler.
type ErrorHandler func(error)
