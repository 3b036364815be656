package encode

import (
	"image"
)

// Outcome is the result of one encode: either Success or Failure.
type Outcome interface {
	outcome()
}

type Success struct {
	// Path is the absolute path of the written file.
	Path string
	// URI is Path as a file:// URI.
	URI    string
	Format Format
	// Preview is the downscaled image for the notifier. Its raw RGBA size
	// is at most MaxPreviewBytes; it is nil when nothing fits.
	Preview image.Image
}

type Failure struct {
	Reason string
	Err    error
}

func (Success) outcome() {}
func (Failure) outcome() {}

func (f Failure) Error() string {
	if f.Err != nil {
		return f.Reason + ": " + f.Err.Error()
	}
	return f.Reason
}

func (f Failure) Unwrap() error { return f.Err }
