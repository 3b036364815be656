package encode

import (
	"image"

	"golang.org/x/image/draw"
)

// PreviewSize scales (w, h) so the longer side is at most maxSide, never
// upscaling and never going below one pixel on either side.
func PreviewSize(w, h, maxSide int) (int, int) {
	if w <= 0 || h <= 0 || maxSide <= 0 {
		return 0, 0
	}
	longest := max(w, h)
	if longest <= maxSide {
		return w, h
	}
	pw := max(w*maxSide/longest, 1)
	ph := max(h*maxSide/longest, 1)
	return pw, ph
}

func (e *Encoder) previewBounds() (minSide, maxSide, maxBytes int) {
	maxSide = e.MaxPreviewSize
	if maxSide <= 0 {
		maxSide = DefaultMaxPreviewSize
	}
	minSide = e.MinPreviewSize
	if minSide <= 0 {
		minSide = DefaultMinPreviewSize
	}
	minSide = min(minSide, maxSide)
	maxBytes = e.MaxPreviewBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPreviewBytes
	}
	return minSide, maxSide, maxBytes
}

// preview downscales img until its RGBA pixels fit in MaxPreviewBytes,
// shrinking from MaxPreviewSize towards MinPreviewSize. It returns nil when
// even the minimum size is too large.
func (e *Encoder) preview(img image.Image) image.Image {
	minSide, maxSide, maxBytes := e.previewBounds()
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	floor := min(minSide, longest)

	side := min(maxSide, longest)
	for side > 0 {
		w, h := PreviewSize(b.Dx(), b.Dy(), side)
		if w == 0 || h == 0 {
			return nil
		}
		if PreviewBytes(w, h) <= maxBytes {
			return scale(img, w, h)
		}
		if side <= floor {
			break
		}
		side = max(side*9/10, floor)
	}
	dbg.Logf(e.Logf)("preview exceeds max_bytes=%d at min_side=%d", maxBytes, floor)
	return nil
}

// PreviewBytes is the size of a w x h preview as raw RGBA.
func PreviewBytes(w, h int) int {
	return w * h * 4
}

func scale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if sb := src.Bounds(); sb.Dx() == w && sb.Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
