//go:build linux

package capture

import (
	"fmt"
	"syscall"

	"go2tv.app/screenshot/internal/pipewire"
)

func openPipeWire(grant PipeWireGrant, geometry Geometry) (Source, error) {
	if !pipewire.IsAvailable() {
		return nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, pipewire.ErrLibraryNotLoaded)
	}

	fd, nodeID, err := grant.OpenPipeWireRemote()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	defer syscall.Close(fd)

	if sizer, ok := grant.(StreamSizer); ok {
		if w, h := sizer.StreamSize(); w > 0 && h > 0 && (w != geometry.Width || h != geometry.Height) {
			debug.Printf("source=pipewire stream_size=%dx%d geometry=%s", w, h, geometry)
			geometry.Width, geometry.Height = w, h
		}
	}

	stream, err := pipewire.NewStream(fd, nodeID, uint32(geometry.Width), uint32(geometry.Height))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}

	src := newSlotSource("pipewire", func() error {
		stream.Close()
		return nil
	})
	stream.OnError(func(err error) {
		debug.Printf("source=pipewire node=%d err=%v", nodeID, err)
		src.deliver(nil)
	})
	stream.OnFrame(func(b pipewire.Buffer) {
		width, height := b.Width, b.Height
		if width <= 0 || height <= 0 {
			width, height = geometry.Width, geometry.Height
		}
		debug.Printf("source=pipewire node=%d frame format=%s size=%dx%d stride=%d bytes=%d", nodeID, b.Format, width, height, b.Stride, len(b.Data))
		src.deliver(frameFromPacked(b.Data, b.Stride, width, height, pixelFormat(b.Format)))
	})
	stream.Start()
	debug.Printf("source=pipewire node=%d started", nodeID)

	return src, nil
}

// pixelFormat maps a negotiated format onto a frame layout. An unreported
// format is taken to be BGRx, which is what portals hand out in practice.
func pixelFormat(f pipewire.VideoFormat) string {
	switch f {
	case pipewire.FormatRGBx:
		return PixelFormatRGBX
	case pipewire.FormatRGBA:
		return PixelFormatRGBA
	case pipewire.FormatBGRA:
		return PixelFormatBGRA
	case pipewire.FormatRGB:
		return PixelFormatRGB
	case pipewire.FormatBGR:
		return PixelFormatBGR
	case pipewire.FormatBGRx, pipewire.FormatUnknown:
		return PixelFormatBGRX
	default:
		return ""
	}
}
